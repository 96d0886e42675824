package viewsync

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/studycast/studycast-playback-backend/internal/domain/continuity"
	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
)

// Adapter subscribes one view to the playback store. It copies canonical
// values into the local mirror once on attach, thereafter re-syncs only per
// its Policy, and funnels every user intent through the continuity
// controller rather than touching the resource.
type Adapter struct {
	store  *playback.Store
	ctrl   *continuity.Controller
	policy Policy

	// onChange is invoked with the new mirror whenever it changes. May be
	// nil for views that poll Mirror() instead.
	onChange func(Mirror)

	now func() time.Time

	mu            sync.Mutex
	local         Mirror
	suppressUntil time.Time
	detached      bool
	sub           *playback.Subscription
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithClock injects the time source. Tests use this to step the suppression
// window deterministically.
func WithClock(now func() time.Time) AdapterOption {
	return func(a *Adapter) { a.now = now }
}

// Attach creates an adapter, performs the one-time initial sync from the
// store and subscribes for reconciliation.
func Attach(store *playback.Store, ctrl *continuity.Controller, policy Policy, onChange func(Mirror), opts ...AdapterOption) *Adapter {
	a := &Adapter{
		store:    store,
		ctrl:     ctrl,
		policy:   policy,
		onChange: onChange,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.local = mirrorOf(store.Snapshot())
	a.sub = store.Subscribe(a.reconcile)
	return a
}

// Detach drops the subscription. The shared resource and playing state are
// untouched; continuity is cross-view.
func (a *Adapter) Detach() {
	a.mu.Lock()
	a.detached = true
	sub := a.sub
	a.mu.Unlock()
	if sub != nil {
		sub.Dispose()
	}
}

// Mirror returns the view's current local state.
func (a *Adapter) Mirror() Mirror {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.local
}

// reconcile applies a store echo to the mirror per the policy: ignored
// inside the suppression window, adopted only when the delta is significant.
// Canonical state always wins once the window has passed, which is how an
// optimistic write that conflicted with a reconciliation resolves.
func (a *Adapter) reconcile(snap playback.Snapshot) {
	canonical := mirrorOf(snap)

	a.mu.Lock()
	if a.detached {
		a.mu.Unlock()
		return
	}
	if a.now().Before(a.suppressUntil) {
		a.mu.Unlock()
		return
	}
	if !a.policy.ShouldAdopt(a.local, canonical) {
		a.mu.Unlock()
		return
	}
	a.local = canonical
	fn := a.onChange
	a.mu.Unlock()

	if fn != nil {
		fn(canonical)
	}
}

// applyLocal records an optimistic local change and opens the suppression
// window so the store's echo of this same write does not bounce back.
func (a *Adapter) applyLocal(mutate func(*Mirror)) {
	a.mu.Lock()
	mutate(&a.local)
	a.suppressUntil = a.now().Add(a.policy.SuppressionWindow)
	m := a.local
	fn := a.onChange
	a.mu.Unlock()

	if fn != nil {
		fn(m)
	}
}

// Play requests playback of the current podcast.
func (a *Adapter) Play() {
	a.applyLocal(func(m *Mirror) { m.IsPlaying = true })
	a.ctrl.Play()
}

// Pause pauses playback.
func (a *Adapter) Pause() {
	a.applyLocal(func(m *Mirror) { m.IsPlaying = false })
	a.ctrl.Pause()
}

// Seek moves the playhead.
func (a *Adapter) Seek(seconds float64) {
	a.applyLocal(func(m *Mirror) { m.Position = seconds })
	a.ctrl.Seek(seconds)
}

// SetVolume adjusts the volume.
func (a *Adapter) SetVolume(v float64) {
	a.applyLocal(func(m *Mirror) { m.Volume = v })
	a.ctrl.SetVolume(v)
}

// SkipBy seeks relative to the current position, e.g. ±15s transport
// buttons.
func (a *Adapter) SkipBy(seconds float64) {
	a.mu.Lock()
	target := a.local.Position + seconds
	a.mu.Unlock()
	if target < 0 {
		target = 0
	}
	a.Seek(target)
}

// PlayPodcast requests playback of a specific podcast, switching if needed.
func (a *Adapter) PlayPodcast(meta playback.Metadata) error {
	a.applyLocal(func(m *Mirror) {
		m.PodcastID = meta.PodcastID
		m.IsPlaying = true
	})
	if err := a.ctrl.PlayPodcast(meta); err != nil {
		// Optimism was wrong; fall back to canonical immediately.
		a.forceSync()
		return err
	}
	return nil
}

// Continue asks the controller to recreate playback from retained metadata.
func (a *Adapter) Continue() error {
	return a.ctrl.ContinuePlayback()
}

// forceSync bypasses thresholds and the suppression window.
func (a *Adapter) forceSync() {
	canonical := mirrorOf(a.store.Snapshot())
	a.mu.Lock()
	a.local = canonical
	a.suppressUntil = time.Time{}
	fn := a.onChange
	a.mu.Unlock()

	log.Debug().Str("podcast", canonical.PodcastID).Msg("Adapter force-synced to canonical state")
	if fn != nil {
		fn(canonical)
	}
}

func mirrorOf(snap playback.Snapshot) Mirror {
	return Mirror{
		PodcastID: snap.PodcastID,
		IsPlaying: snap.IsPlaying,
		Position:  snap.Position,
		Duration:  snap.Duration,
		Volume:    snap.Volume,
	}
}
