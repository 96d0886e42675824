// Package progress periodically snapshots the playhead for the active
// podcast and forwards it, together with listening-time XP, to the hosted
// service. It is decoupled from rendering: a failed save never blocks
// playback and is never surfaced to the user.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
)

// Service is the slice of the hosted backend the recorder needs.
type Service interface {
	// CurrentUserID returns the signed-in user, or "" for anonymous
	// sessions, in which case progress and XP writes are skipped.
	CurrentUserID() string

	// SaveProgress is an idempotent upsert keyed by (user, podcast).
	SaveProgress(ctx context.Context, userID, podcastID string, positionSeconds float64, completed bool) error

	// AwardXP credits gamification points with a reason tag.
	AwardXP(ctx context.Context, userID string, amount int, reason string) error

	// RecordDailyStreak returns true when this call was the first today.
	RecordDailyStreak(ctx context.Context, userID string) (bool, error)
}

// PendingSave is a progress write that failed and waits for the next cadence
// tick.
type PendingSave struct {
	UserID    string
	PodcastID string
	Position  float64
	Completed bool
}

// Queue stores pending saves across ticks (and restarts, when backed by the
// sqlite cache).
type Queue interface {
	Enqueue(p PendingSave) error
	Next(limit int) ([]PendingSave, error)
	Remove(userID, podcastID string) error
}

const (
	defaultTickInterval = time.Second
	defaultSaveInterval = 5 * time.Second
	defaultXPPerMinute  = 10
	defaultCompletionXP = 50
	defaultStreakXP     = 25
	saveTimeout         = 10 * time.Second
	drainBatchSize      = 5
)

// Recorder is the interval-driven progress consumer.
type Recorder struct {
	store *playback.Store
	svc   Service
	queue Queue

	tickInterval time.Duration
	limiter      *rate.Limiter
	now          func() time.Time

	xpPerMinute  int
	completionXP int
	streakXP     int

	mu        sync.Mutex
	lastTick  time.Time
	carry     float64 // fractional listening seconds carried between awards
	completed map[string]bool
	closed    bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithTickInterval sets how often the recorder samples the store.
func WithTickInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.tickInterval = d }
}

// WithSaveInterval sets the minimum spacing between progress saves while
// playing.
func WithSaveInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithQueue sets the pending-save queue.
func WithQueue(q Queue) RecorderOption {
	return func(r *Recorder) { r.queue = q }
}

// WithClock injects the time source for tests.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithXPRates overrides the XP amounts per listening minute, per completion
// and per first-of-day streak.
func WithXPRates(perMinute, completion, streak int) RecorderOption {
	return func(r *Recorder) {
		r.xpPerMinute = perMinute
		r.completionXP = completion
		r.streakXP = streak
	}
}

// NewRecorder creates a recorder over the store and backend service.
func NewRecorder(store *playback.Store, svc Service, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:        store,
		svc:          svc,
		tickInterval: defaultTickInterval,
		limiter:      rate.NewLimiter(rate.Every(defaultSaveInterval), 1),
		now:          time.Now,
		xpPerMinute:  defaultXPPerMinute,
		completionXP: defaultCompletionXP,
		streakXP:     defaultStreakXP,
		completed:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run samples the store on every tick until the context is cancelled, then
// performs the final save.
func (r *Recorder) Run(ctx context.Context) {
	log.Info().
		Dur("tick", r.tickInterval).
		Msg("Progress recorder started")

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Progress recorder stopping")
			r.Close()
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick performs one sampling pass: listening-time accrual and, at most every
// save interval, a progress save plus a drain of previously failed saves.
func (r *Recorder) Tick() {
	now := r.now()
	snap := r.store.Snapshot()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	last := r.lastTick
	r.lastTick = now
	r.mu.Unlock()

	playing := snap.IsPlaying && snap.HasResource
	if !playing {
		return
	}

	if !last.IsZero() {
		delta := now.Sub(last).Seconds()
		// Guard against clock jumps and suspended processes.
		if delta > 0 && delta <= 2*r.tickInterval.Seconds() {
			r.accrueListening(snap, delta)
		}
	}

	if snap.PodcastID != "" && r.limiter.AllowN(now, 1) {
		r.save(snap.PodcastID, snap.Position, false)
		r.drainPending()
	}
}

// OnEnded awards the completion exactly once per podcast per session. Wire
// it to the continuity controller's ended event; position heuristics never
// trigger it.
func (r *Recorder) OnEnded(podcastID string) {
	if podcastID == "" {
		return
	}

	r.mu.Lock()
	if r.completed[podcastID] {
		r.mu.Unlock()
		return
	}
	r.completed[podcastID] = true
	r.mu.Unlock()

	snap := r.store.Snapshot()
	r.save(podcastID, snap.Duration, true)

	userID := r.svc.CurrentUserID()
	if userID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := r.svc.AwardXP(ctx, userID, r.completionXP, "podcast_complete"); err != nil {
		log.Warn().Err(err).Str("podcast", podcastID).Msg("Completion XP award failed")
	}

	first, err := r.svc.RecordDailyStreak(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("Daily streak record failed")
		return
	}
	if first {
		if err := r.svc.AwardXP(ctx, userID, r.streakXP, "daily_streak"); err != nil {
			log.Warn().Err(err).Msg("Streak XP award failed")
		}
	}
}

// Close performs the one final save that bypasses the cadence gate, then
// stops the recorder. Safe to call twice.
func (r *Recorder) Close() {
	snap := r.store.Snapshot()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	if snap.PodcastID != "" {
		r.save(snap.PodcastID, snap.Position, false)
	}
}

// accrueListening converts wall-clock listening into whole-minute XP awards,
// carrying the fractional remainder instead of discarding it.
func (r *Recorder) accrueListening(snap playback.Snapshot, deltaSeconds float64) {
	r.mu.Lock()
	r.carry += deltaSeconds
	minutes := int(r.carry / 60)
	if minutes > 0 {
		r.carry -= float64(minutes) * 60
	}
	r.mu.Unlock()

	if minutes == 0 {
		return
	}
	userID := r.svc.CurrentUserID()
	if userID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	amount := minutes * r.xpPerMinute
	if err := r.svc.AwardXP(ctx, userID, amount, "listening_time"); err != nil {
		log.Warn().Err(err).Int("amount", amount).Msg("Listening XP award failed")
	} else {
		log.Debug().
			Str("podcast", snap.PodcastID).
			Int("minutes", minutes).
			Int("amount", amount).
			Msg("Listening XP awarded")
	}
}

// save performs one progress upsert. Failures are logged and queued for the
// next cadence tick; they never propagate.
func (r *Recorder) save(podcastID string, position float64, completed bool) {
	userID := r.svc.CurrentUserID()
	if userID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := r.svc.SaveProgress(ctx, userID, podcastID, position, completed); err != nil {
		log.Warn().
			Err(err).
			Str("podcast", podcastID).
			Float64("position", position).
			Msg("Progress save failed, queued for retry")
		if r.queue != nil {
			p := PendingSave{UserID: userID, PodcastID: podcastID, Position: position, Completed: completed}
			if qerr := r.queue.Enqueue(p); qerr != nil {
				log.Error().Err(qerr).Msg("Pending-save enqueue failed")
			}
		}
		return
	}

	log.Debug().
		Str("podcast", podcastID).
		Float64("position", position).
		Bool("completed", completed).
		Msg("Progress saved")
}

// drainPending retries previously failed saves, a small batch per tick.
func (r *Recorder) drainPending() {
	if r.queue == nil {
		return
	}
	pending, err := r.queue.Next(drainBatchSize)
	if err != nil {
		log.Warn().Err(err).Msg("Pending-save read failed")
		return
	}

	for _, p := range pending {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err := r.svc.SaveProgress(ctx, p.UserID, p.PodcastID, p.Position, p.Completed)
		cancel()
		if err != nil {
			// Still failing; it stays queued.
			continue
		}
		if err := r.queue.Remove(p.UserID, p.PodcastID); err != nil {
			log.Warn().Err(err).Msg("Pending-save remove failed")
		}
	}
}
