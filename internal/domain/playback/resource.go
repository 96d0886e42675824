package playback

import "context"

// Callbacks is the low-level event surface of a resource. Implementations
// wire the full set before loading the source, so no early event is missed.
// Any callback may be nil.
type Callbacks struct {
	// OnTimeUpdate reports the playhead position in seconds.
	OnTimeUpdate func(seconds float64)

	// OnDuration reports the total duration once metadata is known.
	OnDuration func(seconds float64)

	// OnReady fires once when the resource reports it can play through.
	OnReady func()

	// OnEnded fires when playback reaches the end of the stream.
	OnEnded func()

	// OnError reports a mid-stream decode or transport failure.
	OnError func(err error)
}

// Resource is one live platform audio handle. Exactly one resource may exist
// at any instant; it is exclusively owned by the Store, and consuming views
// never touch it directly.
type Resource interface {
	// Play starts playback. The platform start is asynchronous and may be
	// rejected (autoplay restriction, decode error); implementations wait
	// for readiness with a hard timeout and then attempt anyway.
	Play(ctx context.Context) error

	// Pause pauses playback. Safe on a resource that never started.
	Pause()

	// Seek moves the playhead to the given position in seconds.
	Seek(seconds float64)

	// SetVolume sets the volume in the range 0..1.
	SetVolume(v float64)

	// Position returns the current playhead position in seconds.
	Position() float64

	// Paused reports whether the platform side is actually paused, which can
	// disagree with canonical intent after the platform suspends media.
	Paused() bool

	// URL returns the source the resource was created from.
	URL() string

	// Destroy pauses, clears the source and disposes every listener the
	// resource registered. It is idempotent.
	Destroy()
}

// Factory creates resources with listeners attached before the source loads.
// An empty or unparsable URL yields an InvalidSourceError and no resource.
type Factory interface {
	Create(url string, cb Callbacks) (Resource, error)
}
