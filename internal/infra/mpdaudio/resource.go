package mpdaudio

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
)

const (
	// pollInterval drives time updates between watcher events.
	pollInterval = 500 * time.Millisecond

	// readyTimeout bounds how long Play waits for MPD to report a playing
	// state before giving up on the attempt.
	readyTimeout = 2 * time.Second
)

// Factory creates MPD-backed playback resources. Because MPD holds a single
// queue, each Create replaces whatever stream the daemon had loaded; the
// upstream store guarantees the previous resource is destroyed first.
type Factory struct {
	conn *Conn
}

// NewFactory creates a resource factory over the given connection.
func NewFactory(conn *Conn) *Factory {
	return &Factory{conn: conn}
}

// Create validates the URL, loads it into MPD and starts the event loop that
// feeds the callbacks. The stream stays paused until Play.
func (f *Factory) Create(url string, cb playback.Callbacks) (playback.Resource, error) {
	meta := playback.Metadata{AudioURL: url}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	if err := f.conn.Load(url); err != nil {
		return nil, &playback.PlaybackError{Op: "load", Err: err}
	}

	events, stopWatch, err := f.conn.Watch("player")
	if err != nil {
		// Polling alone still drives the callbacks, just with more latency.
		log.Warn().Err(err).Msg("MPD watcher unavailable, falling back to polling")
		events, stopWatch = nil, func() {}
	}

	r := &resource{
		conn:      f.conn,
		url:       url,
		cb:        cb,
		events:    events,
		stopWatch: stopWatch,
		done:      make(chan struct{}),
	}
	go r.loop()

	log.Debug().Str("url", url).Msg("Audio resource created")
	return r, nil
}

// resource is one loaded MPD stream.
type resource struct {
	conn      *Conn
	url       string
	cb        playback.Callbacks
	events    <-chan string
	stopWatch func()
	done      chan struct{}
	destroy   sync.Once

	mu         sync.Mutex
	position   float64
	duration   float64
	paused     bool
	ready      bool
	wasPlaying bool
}

func (r *resource) URL() string { return r.url }

// Play starts playback, waiting up to readyTimeout for MPD to confirm the
// stream actually entered the play state.
func (r *resource) Play(ctx context.Context) error {
	if err := r.conn.Play(-1); err != nil {
		// A stopped stream cannot resume with -1; retry from the queue head.
		if err2 := r.conn.Play(0); err2 != nil {
			return &playback.PlaybackError{Op: "play", Err: err2}
		}
	}

	deadline := time.After(readyTimeout)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return &playback.PlaybackError{Op: "play", Err: ctx.Err()}
		case <-r.done:
			return &playback.PlaybackError{Op: "play", Err: context.Canceled}
		case <-deadline:
			return &playback.PlaybackError{Op: "play", Err: errNotPlaying}
		case <-tick.C:
			status, err := r.conn.Status()
			if err != nil {
				return &playback.PlaybackError{Op: "play", Err: err}
			}
			if status["state"] == "play" {
				r.applyStatus(status)
				return nil
			}
		}
	}
}

func (r *resource) Pause() {
	if err := r.conn.Pause(true); err != nil {
		log.Warn().Err(err).Msg("MPD pause failed")
	}
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
}

func (r *resource) Seek(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	if err := r.conn.Seek(int(seconds)); err != nil {
		log.Warn().Err(err).Float64("seconds", seconds).Msg("MPD seek failed")
		return
	}
	r.mu.Lock()
	r.position = seconds
	r.mu.Unlock()
}

func (r *resource) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	if err := r.conn.SetVolume(int(v * 100)); err != nil {
		log.Warn().Err(err).Msg("MPD volume change failed")
	}
}

func (r *resource) Position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

func (r *resource) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Destroy stops the event loop, the watcher and the stream. Idempotent.
func (r *resource) Destroy() {
	r.destroy.Do(func() {
		close(r.done)
		r.stopWatch()
		if err := r.conn.Stop(); err != nil {
			log.Warn().Err(err).Msg("MPD stop failed during destroy")
		}
		log.Debug().Str("url", r.url).Msg("Audio resource destroyed")
	})
}

// loop polls MPD status and folds watcher events in, translating daemon state
// into resource callbacks.
func (r *resource) loop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case _, ok := <-r.events:
			if !ok {
				r.events = nil
				continue
			}
			r.poll()
		case <-ticker.C:
			r.poll()
		}
	}
}

func (r *resource) poll() {
	status, err := r.conn.Status()
	if err != nil {
		select {
		case <-r.done:
			return
		default:
		}
		if r.cb.OnError != nil {
			r.cb.OnError(&playback.PlaybackError{Op: "status", Err: err})
		}
		return
	}
	r.applyStatus(status)
}

// applyStatus updates the cached view of the daemon and fires callbacks for
// whatever changed. Callbacks run outside the resource lock.
func (r *resource) applyStatus(status map[string]string) {
	elapsed, _ := strconv.ParseFloat(status["elapsed"], 64)
	duration, _ := strconv.ParseFloat(status["duration"], 64)
	state := status["state"]

	r.mu.Lock()
	var (
		fireDuration bool
		fireReady    bool
		fireTime     bool
		fireEnded    bool
	)

	if duration > 0 && duration != r.duration {
		r.duration = duration
		fireDuration = true
	}
	if !r.ready && duration > 0 {
		r.ready = true
		fireReady = true
	}

	switch state {
	case "play":
		r.paused = false
		r.wasPlaying = true
		if elapsed != r.position {
			r.position = elapsed
			fireTime = true
		}
	case "pause":
		r.paused = true
		r.position = elapsed
	case "stop":
		// MPD drops to stop when the stream runs out. Only a stream that was
		// playing and got near its end counts as a natural finish.
		if r.wasPlaying && r.duration > 0 && r.position >= r.duration-1 {
			fireEnded = true
		}
		r.wasPlaying = false
		r.paused = true
	}
	r.mu.Unlock()

	if fireDuration && r.cb.OnDuration != nil {
		r.cb.OnDuration(duration)
	}
	if fireReady && r.cb.OnReady != nil {
		r.cb.OnReady()
	}
	if fireTime && r.cb.OnTimeUpdate != nil {
		r.cb.OnTimeUpdate(elapsed)
	}
	if fireEnded && r.cb.OnEnded != nil {
		r.cb.OnEnded()
	}
}
