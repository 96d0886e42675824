package playback

import "net/url"

// Metadata describes the podcast a resource plays. It is assigned wholesale
// when the user switches podcasts and retained in the store even after the
// underlying resource is torn down, so continuity can recreate playback later.
type Metadata struct {
	PodcastID  string
	Title      string
	CourseName string
	ImageURL   string
	AudioURL   string
}

// Validate checks that the metadata can back a playable resource.
func (m Metadata) Validate() error {
	if m.AudioURL == "" {
		return &InvalidSourceError{URL: m.AudioURL}
	}
	u, err := url.Parse(m.AudioURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &InvalidSourceError{URL: m.AudioURL}
	}
	return nil
}
