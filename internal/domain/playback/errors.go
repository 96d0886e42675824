package playback

import "fmt"

// InvalidSourceError indicates a podcast carried a malformed or missing audio
// URL. The play attempt is abandoned and no resource is created.
type InvalidSourceError struct {
	URL string
}

func (e *InvalidSourceError) Error() string {
	if e.URL == "" {
		return "invalid audio source: empty URL"
	}
	return fmt.Sprintf("invalid audio source: %q", e.URL)
}

// PlaybackError indicates the platform rejected a play attempt or raised a
// decode/network error mid-stream. It is recoverable by bounded retry.
type PlaybackError struct {
	Op  string
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback %s: %v", e.Op, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
