package viewsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/studycast/studycast-playback-backend/internal/domain/continuity"
	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
	"github.com/studycast/studycast-playback-backend/internal/domain/viewsync"
)

// testClock is a hand-stepped time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubResource struct{ url string }

func (stubResource) Play(context.Context) error { return nil }
func (stubResource) Pause()                     {}
func (stubResource) Seek(float64)               {}
func (stubResource) SetVolume(float64)          {}
func (stubResource) Position() float64          { return 0 }
func (stubResource) Paused() bool               { return false }
func (r stubResource) URL() string              { return r.url }
func (stubResource) Destroy()                   {}

type stubFactory struct{ err error }

func (f stubFactory) Create(url string, cb playback.Callbacks) (playback.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	return stubResource{url: url}, nil
}

func setup(t *testing.T, factory playback.Factory) (*playback.Store, *continuity.Controller, *testClock) {
	t.Helper()
	store := playback.NewStore()
	ctrl := continuity.New(store, factory, continuity.WithResumeDelay(0))
	t.Cleanup(ctrl.Close)
	return store, ctrl, newTestClock()
}

func TestAttachPerformsInitialSync(t *testing.T) {
	store, ctrl, clock := setup(t, stubFactory{})
	store.SetResource(stubResource{}, "p1", &playback.Metadata{PodcastID: "p1", AudioURL: "https://x.test/a.mp3"})
	store.SetDuration(300)
	store.Play()
	store.UpdatePosition(45)
	store.SetVolume(0.7)

	a := viewsync.Attach(store, ctrl, viewsync.DefaultPolicy(), nil, viewsync.WithClock(clock.Now))
	defer a.Detach()

	m := a.Mirror()
	if m.PodcastID != "p1" || !m.IsPlaying || m.Position != 45 || m.Duration != 300 || m.Volume != 0.7 {
		t.Errorf("initial mirror = %+v, want full copy of canonical state", m)
	}
}

func TestReconcileRespectsPositionThreshold(t *testing.T) {
	store, ctrl, clock := setup(t, stubFactory{})
	store.SetResource(stubResource{}, "p1", nil)
	store.SetDuration(300)
	store.UpdatePosition(100)

	a := viewsync.Attach(store, ctrl, viewsync.DefaultPolicy(), nil, viewsync.WithClock(clock.Now))
	defer a.Detach()

	// Drift below the threshold is ignored; the view owns small deltas.
	store.UpdatePosition(105)
	if m := a.Mirror(); m.Position != 100 {
		t.Errorf("mirror adopted sub-threshold drift: %v", m.Position)
	}

	// Large drift re-syncs.
	store.UpdatePosition(140)
	if m := a.Mirror(); m.Position != 140 {
		t.Errorf("mirror ignored significant drift: %v", m.Position)
	}
}

func TestReconcileAlwaysAdoptsFlagChanges(t *testing.T) {
	store, ctrl, clock := setup(t, stubFactory{})
	store.SetResource(stubResource{}, "p1", nil)

	a := viewsync.Attach(store, ctrl, viewsync.DefaultPolicy(), nil, viewsync.WithClock(clock.Now))
	defer a.Detach()

	store.Play()
	if m := a.Mirror(); !m.IsPlaying {
		t.Error("flag change must always be adopted")
	}
}

func TestSuppressionWindowBlocksEchoes(t *testing.T) {
	store, ctrl, clock := setup(t, stubFactory{})
	store.SetResource(stubResource{}, "p1", nil)
	store.SetDuration(300)

	a := viewsync.Attach(store, ctrl, viewsync.DefaultPolicy(), nil, viewsync.WithClock(clock.Now))
	defer a.Detach()

	// Optimistic seek opens the window.
	a.Seek(30)
	if m := a.Mirror(); m.Position != 30 {
		t.Fatalf("optimistic write not applied: %v", m.Position)
	}

	// A conflicting echo inside the window is ignored outright.
	store.UpdatePosition(200)
	if m := a.Mirror(); m.Position != 30 {
		t.Errorf("echo adopted inside suppression window: %v", m.Position)
	}

	// Once the window passes, canonical wins.
	clock.Advance(60 * time.Millisecond)
	store.UpdatePosition(200)
	if m := a.Mirror(); m.Position != 200 {
		t.Errorf("canonical not adopted after window: %v", m.Position)
	}
}

func TestIntentsApplyOptimistically(t *testing.T) {
	store, ctrl, clock := setup(t, stubFactory{})
	store.SetResource(stubResource{}, "p1", nil)
	store.Play()

	var mu sync.Mutex
	var changes []viewsync.Mirror
	a := viewsync.Attach(store, ctrl, viewsync.DefaultPolicy(), func(m viewsync.Mirror) {
		mu.Lock()
		changes = append(changes, m)
		mu.Unlock()
	}, viewsync.WithClock(clock.Now))
	defer a.Detach()

	a.Pause()
	if m := a.Mirror(); m.IsPlaying {
		t.Error("pause must reflect in the mirror immediately")
	}
	mu.Lock()
	if len(changes) == 0 {
		t.Error("onChange not fired for optimistic write")
	}
	mu.Unlock()

	a.SetVolume(0.5)
	if m := a.Mirror(); m.Volume != 0.5 {
		t.Errorf("volume mirror = %v, want 0.5", m.Volume)
	}
}

func TestSkipByClampsAtZero(t *testing.T) {
	store, ctrl, clock := setup(t, stubFactory{})
	store.SetResource(stubResource{}, "p1", nil)
	store.SetDuration(300)
	store.UpdatePosition(5)

	a := viewsync.Attach(store, ctrl, viewsync.DefaultPolicy(), nil, viewsync.WithClock(clock.Now))
	defer a.Detach()

	a.SkipBy(-15)
	if m := a.Mirror(); m.Position != 0 {
		t.Errorf("SkipBy below zero: mirror position %v, want 0", m.Position)
	}
	if snap := store.Snapshot(); snap.Position != 0 {
		t.Errorf("canonical position %v, want 0", snap.Position)
	}
}

func TestPlayPodcastFailureForcesResync(t *testing.T) {
	store, ctrl, clock := setup(t, stubFactory{err: errors.New("create failed")})

	a := viewsync.Attach(store, ctrl, viewsync.DefaultPolicy(), nil, viewsync.WithClock(clock.Now))
	defer a.Detach()

	err := a.PlayPodcast(playback.Metadata{PodcastID: "p9", AudioURL: "https://x.test/9.mp3"})
	if err == nil {
		t.Fatal("expected creation failure to propagate")
	}
	m := a.Mirror()
	if m.PodcastID != "" || m.IsPlaying {
		t.Errorf("mirror kept failed optimism: %+v", m)
	}
}

func TestDetachStopsReconciliation(t *testing.T) {
	store, ctrl, clock := setup(t, stubFactory{})
	store.SetResource(stubResource{}, "p1", nil)

	a := viewsync.Attach(store, ctrl, viewsync.DefaultPolicy(), nil, viewsync.WithClock(clock.Now))
	a.Detach()
	a.Detach() // second detach must be safe

	store.Play()
	if m := a.Mirror(); m.IsPlaying {
		t.Error("detached adapter still reconciling")
	}
}
