package progress_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
	"github.com/studycast/studycast-playback-backend/internal/domain/progress"
)

type savedProgress struct {
	PodcastID string
	Position  float64
	Completed bool
}

type xpAward struct {
	Amount int
	Reason string
}

// fakeService records every write and can be scripted to fail.
type fakeService struct {
	mu          sync.Mutex
	userID      string
	saves       []savedProgress
	awards      []xpAward
	saveErr     error
	streakFirst bool
	streakCalls int
}

func (f *fakeService) CurrentUserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

func (f *fakeService) SaveProgress(ctx context.Context, userID, podcastID string, position float64, completed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, savedProgress{PodcastID: podcastID, Position: position, Completed: completed})
	return nil
}

func (f *fakeService) AwardXP(ctx context.Context, userID string, amount int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awards = append(f.awards, xpAward{Amount: amount, Reason: reason})
	return nil
}

func (f *fakeService) RecordDailyStreak(ctx context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streakCalls++
	return f.streakFirst, nil
}

func (f *fakeService) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeService) allAwards() []xpAward {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]xpAward, len(f.awards))
	copy(out, f.awards)
	return out
}

// memQueue is an in-memory pending-save queue.
type memQueue struct {
	mu      sync.Mutex
	pending []progress.PendingSave
}

func (q *memQueue) Enqueue(p progress.PendingSave) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, existing := range q.pending {
		if existing.UserID == p.UserID && existing.PodcastID == p.PodcastID {
			q.pending[i] = p
			return nil
		}
	}
	q.pending = append(q.pending, p)
	return nil
}

func (q *memQueue) Next(limit int) ([]progress.PendingSave, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) < limit {
		limit = len(q.pending)
	}
	out := make([]progress.PendingSave, limit)
	copy(out, q.pending[:limit])
	return out, nil
}

func (q *memQueue) Remove(userID, podcastID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p.UserID == userID && p.PodcastID == podcastID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *memQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// stepClock advances by hand so ticks are deterministic.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Unix(1700000000, 0)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func playingStore(t *testing.T, podcastID string, position float64) *playback.Store {
	t.Helper()
	store := playback.NewStore()
	store.SetResource(fakeHandle{}, podcastID, &playback.Metadata{
		PodcastID: podcastID,
		AudioURL:  "https://cdn.example.com/" + podcastID + ".mp3",
	})
	store.SetDuration(600)
	store.Play()
	store.UpdatePosition(position)
	return store
}

type fakeHandle struct{}

func (fakeHandle) Play(context.Context) error { return nil }
func (fakeHandle) Pause()                     {}
func (fakeHandle) Seek(float64)               {}
func (fakeHandle) SetVolume(float64)          {}
func (fakeHandle) Position() float64          { return 0 }
func (fakeHandle) Paused() bool               { return false }
func (fakeHandle) URL() string                { return "" }
func (fakeHandle) Destroy()                   {}

// Twelve seconds of playback at a 5 second save cadence lands two or three
// periodic saves, plus exactly one final save on Close.
func TestSaveCadence(t *testing.T) {
	store := playingStore(t, "p1", 0)
	svc := &fakeService{userID: "u1"}
	clock := newStepClock()

	rec := progress.NewRecorder(store, svc,
		progress.WithClock(clock.Now),
		progress.WithSaveInterval(5*time.Second),
	)

	for i := 0; i < 12; i++ {
		clock.Advance(time.Second)
		store.UpdatePosition(float64(i + 1))
		rec.Tick()
	}

	periodic := svc.saveCount()
	if periodic < 2 || periodic > 3 {
		t.Errorf("periodic saves = %d, want 2 or 3 over 12s at 5s cadence", periodic)
	}

	rec.Close()
	if got := svc.saveCount(); got != periodic+1 {
		t.Errorf("saves after Close = %d, want exactly one final save on top of %d", got, periodic)
	}
}

func TestNoSavesWhilePaused(t *testing.T) {
	store := playingStore(t, "p1", 30)
	store.Pause()
	svc := &fakeService{userID: "u1"}
	clock := newStepClock()

	rec := progress.NewRecorder(store, svc, progress.WithClock(clock.Now))
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		rec.Tick()
	}

	if svc.saveCount() != 0 {
		t.Errorf("saves while paused = %d, want 0", svc.saveCount())
	}
}

func TestAnonymousSessionSkipsWrites(t *testing.T) {
	store := playingStore(t, "p1", 30)
	svc := &fakeService{userID: ""}
	clock := newStepClock()

	rec := progress.NewRecorder(store, svc, progress.WithClock(clock.Now))
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		rec.Tick()
	}
	rec.Close()
	rec.OnEnded("p1")

	if svc.saveCount() != 0 {
		t.Errorf("saves for anonymous user = %d, want 0", svc.saveCount())
	}
	if len(svc.allAwards()) != 0 {
		t.Errorf("awards for anonymous user = %v, want none", svc.allAwards())
	}
}

func TestListeningXPWithMinuteCarry(t *testing.T) {
	store := playingStore(t, "p1", 0)
	svc := &fakeService{userID: "u1"}
	clock := newStepClock()

	rec := progress.NewRecorder(store, svc, progress.WithClock(clock.Now))

	// The first tick only establishes the baseline.
	rec.Tick()

	// 90 one-second ticks: one whole minute awarded, 30s carried.
	for i := 0; i < 90; i++ {
		clock.Advance(time.Second)
		rec.Tick()
	}

	awards := listeningAwards(svc)
	if len(awards) != 1 || awards[0].Amount != 10 {
		t.Fatalf("listening awards after 90s = %v, want one award of 10", awards)
	}

	// 30 more seconds completes the second minute from the carry.
	for i := 0; i < 30; i++ {
		clock.Advance(time.Second)
		rec.Tick()
	}
	awards = listeningAwards(svc)
	if len(awards) != 2 {
		t.Errorf("listening awards after 120s = %v, want two", awards)
	}
}

func listeningAwards(svc *fakeService) []xpAward {
	var out []xpAward
	for _, a := range svc.allAwards() {
		if a.Reason == "listening_time" {
			out = append(out, a)
		}
	}
	return out
}

func TestClockJumpDoesNotInflateListening(t *testing.T) {
	store := playingStore(t, "p1", 0)
	svc := &fakeService{userID: "u1"}
	clock := newStepClock()

	rec := progress.NewRecorder(store, svc, progress.WithClock(clock.Now))
	clock.Advance(time.Second)
	rec.Tick()

	// Process suspended for ten minutes; the delta must be discarded.
	clock.Advance(10 * time.Minute)
	rec.Tick()

	if awards := listeningAwards(svc); len(awards) != 0 {
		t.Errorf("clock jump awarded XP: %v", awards)
	}
}

func TestOnEndedAwardsOncePerSession(t *testing.T) {
	store := playingStore(t, "p1", 590)
	svc := &fakeService{userID: "u1", streakFirst: true}
	clock := newStepClock()

	rec := progress.NewRecorder(store, svc, progress.WithClock(clock.Now))
	rec.OnEnded("p1")
	rec.OnEnded("p1")

	var completion, streak int
	for _, a := range svc.allAwards() {
		switch a.Reason {
		case "podcast_complete":
			completion++
			if a.Amount != 50 {
				t.Errorf("completion XP = %d, want 50", a.Amount)
			}
		case "daily_streak":
			streak++
			if a.Amount != 25 {
				t.Errorf("streak XP = %d, want 25", a.Amount)
			}
		}
	}
	if completion != 1 {
		t.Errorf("completion awards = %d, want exactly 1", completion)
	}
	if streak != 1 {
		t.Errorf("streak awards = %d, want exactly 1 (first of day)", streak)
	}

	// The completed save carries the duration and the completed flag.
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.saves) != 1 || !svc.saves[0].Completed || svc.saves[0].Position != 600 {
		t.Errorf("completion save = %+v, want completed at duration", svc.saves)
	}
}

func TestOnEndedNotFirstOfDaySkipsStreakXP(t *testing.T) {
	store := playingStore(t, "p1", 600)
	svc := &fakeService{userID: "u1", streakFirst: false}
	rec := progress.NewRecorder(store, svc)

	rec.OnEnded("p1")

	for _, a := range svc.allAwards() {
		if a.Reason == "daily_streak" {
			t.Errorf("streak XP awarded on a repeat call: %v", a)
		}
	}
}

func TestFailedSaveQueuedAndDrained(t *testing.T) {
	store := playingStore(t, "p1", 30)
	svc := &fakeService{userID: "u1", saveErr: errors.New("backend down")}
	queue := &memQueue{}
	clock := newStepClock()

	rec := progress.NewRecorder(store, svc,
		progress.WithClock(clock.Now),
		progress.WithQueue(queue),
		progress.WithSaveInterval(5*time.Second),
	)

	for i := 0; i < 6; i++ {
		clock.Advance(time.Second)
		rec.Tick()
	}
	if queue.size() != 1 {
		t.Fatalf("queued saves = %d, want 1 (upserted per podcast)", queue.size())
	}

	// Backend recovers; the next cadence tick drains the queue.
	svc.mu.Lock()
	svc.saveErr = nil
	svc.mu.Unlock()

	for i := 0; i < 6; i++ {
		clock.Advance(time.Second)
		rec.Tick()
	}
	if queue.size() != 0 {
		t.Errorf("queue not drained after recovery: %d", queue.size())
	}
	if svc.saveCount() == 0 {
		t.Error("no saves reached the backend after recovery")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	store := playingStore(t, "p1", 30)
	svc := &fakeService{userID: "u1"}
	rec := progress.NewRecorder(store, svc)

	rec.Close()
	rec.Close()

	if svc.saveCount() != 1 {
		t.Errorf("saves after double Close = %d, want 1", svc.saveCount())
	}
}
