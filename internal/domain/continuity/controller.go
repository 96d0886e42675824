// Package continuity keeps logical playback alive across resource teardown
// and podcast switches. The controller decides, for every play request,
// whether to reuse the live resource, hand playback off to a new one, or
// recreate one from retained metadata.
package continuity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
)

// Phase is the controller's position in the resource lifecycle.
type Phase int

const (
	// PhaseNoResource means no resource exists and none is recoverable.
	PhaseNoResource Phase = iota

	// PhaseResourceActive means one live resource is installed in the store.
	PhaseResourceActive

	// PhaseResourceStale means the resource was torn down mid-playback but
	// metadata was retained, so ContinuePlayback can recreate it.
	PhaseResourceStale
)

// String returns a human-readable label for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseNoResource:
		return "no-resource"
	case PhaseResourceActive:
		return "active"
	case PhaseResourceStale:
		return "stale"
	default:
		return "unknown"
	}
}

// playAttemptTimeout bounds a single platform play attempt, on top of the
// resource's own readiness wait.
const playAttemptTimeout = 5 * time.Second

// Controller mediates every playback intent. Views never touch the resource;
// they call the controller, which drives the store and the platform side.
type Controller struct {
	store   *playback.Store
	factory playback.Factory

	retry       RetryPolicy
	reload      RetryPolicy
	resumeDelay time.Duration
	notify      func(message string)

	mu      sync.Mutex
	phase   Phase
	current playback.Resource
	seq     uint64
	reloads int
	timers  map[*time.Timer]struct{}
	closed  bool
	onEnded []func(podcastID string)
}

// Option configures a Controller.
type Option func(*Controller)

// WithRetryPolicy sets the bounded-retry policy for rejected play attempts.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Controller) { c.retry = p }
}

// WithReloadPolicy sets the recreation policy for mid-stream load errors.
func WithReloadPolicy(p RetryPolicy) Option {
	return func(c *Controller) { c.reload = p }
}

// WithResumeDelay sets the pause between installing a new source and the
// first play attempt, giving the platform time to attach the resource.
func WithResumeDelay(d time.Duration) Option {
	return func(c *Controller) { c.resumeDelay = d }
}

// WithNotifyFunc sets the hook for user-visible failure messages.
func WithNotifyFunc(fn func(message string)) Option {
	return func(c *Controller) { c.notify = fn }
}

// New creates a controller over the given store and resource factory.
func New(store *playback.Store, factory playback.Factory, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		factory:     factory,
		retry:       DefaultRetryPolicy(),
		reload:      DefaultReloadPolicy(),
		resumeDelay: 200 * time.Millisecond,
		timers:      make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// OnEnded registers a handler for the resource's ended event. Handlers run
// after the store has recorded the end of the stream.
func (c *Controller) OnEnded(fn func(podcastID string)) {
	c.mu.Lock()
	c.onEnded = append(c.onEnded, fn)
	c.mu.Unlock()
}

// SetNotifyFunc replaces the user-visible failure hook. Used when the
// transport that shows toasts is constructed after the controller.
func (c *Controller) SetNotifyFunc(fn func(message string)) {
	c.mu.Lock()
	c.notify = fn
	c.mu.Unlock()
}

// Load prepares playback for the given podcast without forcing it to start.
// Same podcast with a live resource is a metadata refresh; anything else is
// a handoff that preserves the playing flag captured from the old state.
func (c *Controller) Load(meta playback.Metadata) error {
	return c.open(meta, false)
}

// PlayPodcast is an explicit request to play the given podcast: reuse the
// live resource when it already plays this podcast, otherwise hand off or
// recreate, and in every case target the playing state.
func (c *Controller) PlayPodcast(meta playback.Metadata) error {
	return c.open(meta, true)
}

func (c *Controller) open(meta playback.Metadata, forcePlay bool) error {
	if err := meta.Validate(); err != nil {
		log.Warn().Str("podcast", meta.PodcastID).Err(err).Msg("Rejected play request")
		return err
	}

	snap := c.store.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.PodcastID == meta.PodcastID && c.current != nil {
		// Reuse: refresh metadata, never recreate, never reset position.
		res, seq := c.current, c.seq
		c.store.SetResource(nil, meta.PodcastID, &meta)
		if forcePlay && !snap.IsPlaying {
			c.store.Play()
			c.scheduleLocked(0, func() { c.attemptPlay(res, seq, 1) })
		}
		return nil
	}

	wantPlay := forcePlay || snap.IsPlaying
	return c.installLocked(meta, wantPlay)
}

// ContinuePlayback recreates playback from retained metadata after the
// resource was torn down. With no retained metadata it is a no-op.
func (c *Controller) ContinuePlayback() error {
	snap := c.store.Snapshot()
	if snap.Metadata == nil {
		log.Debug().Msg("ContinuePlayback: no retained metadata")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && snap.PodcastID == snap.Metadata.PodcastID {
		res, seq := c.current, c.seq
		c.store.Play()
		c.scheduleLocked(0, func() { c.attemptPlay(res, seq, 1) })
		return nil
	}
	return c.installLocked(*snap.Metadata, true)
}

// installLocked creates a resource for meta, installs it in the store and,
// when wantPlay is set, schedules the delayed play attempt. A second switch
// arriving before the first completes bumps the sequence number, so every
// pending timer and event from the superseded switch is discarded.
func (c *Controller) installLocked(meta playback.Metadata, wantPlay bool) error {
	c.seq++
	seq := c.seq
	c.cancelTimersLocked()

	res, err := c.factory.Create(meta.AudioURL, c.callbacks(seq))
	if err != nil {
		log.Error().Str("podcast", meta.PodcastID).Err(err).Msg("Resource creation failed")
		return err
	}

	c.current = res
	c.phase = PhaseResourceActive
	c.reloads = 0

	c.store.SetResource(res, meta.PodcastID, &meta)

	if wantPlay {
		c.store.Play()
		c.scheduleLocked(c.resumeDelay, func() { c.attemptPlay(res, seq, 1) })
	}

	log.Info().
		Str("podcast", meta.PodcastID).
		Bool("wantPlay", wantPlay).
		Msg("Playback handed off to new resource")
	return nil
}

// Play targets the playing state on the current podcast. With a live
// resource this attempts the platform start; with only retained metadata it
// behaves like ContinuePlayback.
func (c *Controller) Play() {
	c.mu.Lock()
	if c.current != nil {
		res, seq := c.current, c.seq
		c.store.Play()
		c.scheduleLocked(0, func() { c.attemptPlay(res, seq, 1) })
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	if err := c.ContinuePlayback(); err != nil {
		log.Warn().Err(err).Msg("Play: recreation failed")
	}
}

// Pause pauses playback.
func (c *Controller) Pause() {
	c.store.Pause()
}

// Seek moves the playhead.
func (c *Controller) Seek(seconds float64) {
	c.store.Seek(seconds)
}

// SetVolume adjusts the volume.
func (c *Controller) SetVolume(v float64) {
	c.store.SetVolume(v)
}

// Suspend tears the resource down while retaining metadata, e.g. when the
// last view disconnects. If playback was active the controller goes stale
// and ContinuePlayback can pick it back up.
func (c *Controller) Suspend() {
	c.mu.Lock()
	c.seq++
	c.cancelTimersLocked()
	c.current = nil
	c.mu.Unlock()

	wasPlaying := c.store.DetachResource()
	snap := c.store.Snapshot()

	c.mu.Lock()
	if wasPlaying && snap.Metadata != nil {
		c.phase = PhaseResourceStale
	} else {
		c.phase = PhaseNoResource
	}
	c.mu.Unlock()
}

// OnVisible handles the document becoming visible again: if canonical state
// says playing but the platform paused the media while backgrounded, the
// play is re-issued.
func (c *Controller) OnVisible() {
	c.mu.Lock()
	res, seq := c.current, c.seq
	c.mu.Unlock()

	if res == nil {
		return
	}
	snap := c.store.Snapshot()
	if snap.IsPlaying && res.Paused() {
		log.Debug().Str("podcast", snap.PodcastID).Msg("Resuming after visibility change")
		c.mu.Lock()
		c.scheduleLocked(0, func() { c.attemptPlay(res, seq, 1) })
		c.mu.Unlock()
	}
}

// Close cancels every pending timer and stops the controller. The store and
// its resource are left for the owner to clear.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancelTimersLocked()
}

// attemptPlay runs one platform play attempt, retrying per policy. Attempts
// belonging to a superseded switch are dropped.
func (c *Controller) attemptPlay(res playback.Resource, seq uint64, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), playAttemptTimeout)
	err := res.Play(ctx)
	cancel()

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}

	if err == nil {
		c.phase = PhaseResourceActive
		c.mu.Unlock()
		c.store.ClearPendingResume()
		return
	}

	if attempt < c.retry.MaxAttempts {
		delay := c.retry.Delay(attempt)
		c.scheduleLocked(delay, func() { c.attemptPlay(res, seq, attempt+1) })
		c.mu.Unlock()
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Play rejected, retrying")
		return
	}
	c.mu.Unlock()

	log.Error().Err(err).Int("attempts", attempt).Msg("Play failed after retries")
	c.store.ForcePaused()
	c.toast("Could not play audio")
}

// callbacks builds the event surface for a resource created under seq.
// Events from destroyed or superseded resources are ignored.
func (c *Controller) callbacks(seq uint64) playback.Callbacks {
	return playback.Callbacks{
		OnTimeUpdate: func(seconds float64) {
			if c.isCurrent(seq) {
				c.store.UpdatePosition(seconds)
			}
		},
		OnDuration: func(seconds float64) {
			if c.isCurrent(seq) {
				c.store.SetDuration(seconds)
			}
		},
		OnEnded: func() { c.handleEnded(seq) },
		OnError: func(err error) { c.handleResourceError(seq, err) },
	}
}

func (c *Controller) isCurrent(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq == c.seq && !c.closed
}

func (c *Controller) handleEnded(seq uint64) {
	if !c.isCurrent(seq) {
		return
	}
	snap := c.store.Snapshot()
	c.store.MarkEnded()

	c.mu.Lock()
	handlers := make([]func(string), len(c.onEnded))
	copy(handlers, c.onEnded)
	c.mu.Unlock()

	log.Info().Str("podcast", snap.PodcastID).Msg("Playback ended")
	for _, fn := range handlers {
		fn(snap.PodcastID)
	}
}

// handleResourceError recreates the resource from retained metadata with
// backoff, up to the reload policy's budget, then surfaces the failure.
func (c *Controller) handleResourceError(seq uint64, err error) {
	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.reloads++
	n := c.reloads
	if n > c.reload.MaxAttempts {
		c.mu.Unlock()
		log.Error().Err(err).Int("reloads", n-1).Msg("Load error, retries exhausted")
		c.store.ForcePaused()
		c.toast("Could not play audio")
		return
	}
	delay := c.reload.Delay(n)
	c.scheduleLocked(delay, func() { c.reloadFromMetadata(seq, n) })
	c.mu.Unlock()

	log.Warn().Err(err).Int("reload", n).Dur("delay", delay).Msg("Load error, recreating resource")
}

func (c *Controller) reloadFromMetadata(seq uint64, reloads int) {
	snap := c.store.Snapshot()
	if snap.Metadata == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || seq != c.seq {
		return
	}
	if err := c.installLocked(*snap.Metadata, snap.IsPlaying); err != nil {
		log.Error().Err(err).Msg("Reload failed")
		return
	}
	// installLocked resets the counter; the reload budget spans attempts.
	c.reloads = reloads
}

func (c *Controller) toast(message string) {
	c.mu.Lock()
	fn := c.notify
	c.mu.Unlock()
	if fn != nil {
		fn(message)
	}
}

// scheduleLocked tracks a timer so a superseding action or Close can cancel
// it. A dangling timer mutating state after teardown is a defect.
func (c *Controller) scheduleLocked(d time.Duration, fn func()) {
	if c.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		c.mu.Lock()
		delete(c.timers, t)
		c.mu.Unlock()
		fn()
	})
	c.timers[t] = struct{}{}
}

func (c *Controller) cancelTimersLocked() {
	for t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[*time.Timer]struct{})
}
