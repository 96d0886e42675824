package playback

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store is the single source of truth for playback. It owns the one live
// resource handle; every mutator applies its effect to the resource and the
// canonical numeric state in the same critical section, so subscribers never
// observe the two disagreeing.
//
// A Store is explicitly constructed at application start and cleared at
// teardown; consumers receive it by reference.
type Store struct {
	mu sync.Mutex

	resource      Resource
	podcastID     string
	isPlaying     bool
	pendingResume bool
	position      float64
	duration      float64
	volume        float64
	metadata      *Metadata

	subs   map[uint64]func(Snapshot)
	nextID uint64
}

// Subscription is the handle returned by Subscribe. Dispose detaches the
// subscriber; it is safe to call more than once.
type Subscription struct {
	once    sync.Once
	dispose func()
}

// Dispose removes the subscription from the store.
func (s *Subscription) Dispose() {
	s.once.Do(s.dispose)
}

// NewStore creates a store with no resource and full volume.
func NewStore() *Store {
	return &Store{
		volume: 1.0,
		subs:   make(map[uint64]func(Snapshot)),
	}
}

// Subscribe registers fn to receive a snapshot after every mutation. The
// callback runs synchronously in the mutating call, outside the store lock.
func (s *Store) Subscribe(fn func(Snapshot)) *Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return &Subscription{dispose: func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}}
}

// Snapshot returns a copy of the canonical state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	var meta *Metadata
	if s.metadata != nil {
		m := *s.metadata
		meta = &m
	}
	return Snapshot{
		PodcastID:     s.podcastID,
		HasResource:   s.resource != nil,
		IsPlaying:     s.isPlaying,
		PendingResume: s.pendingResume,
		Position:      s.position,
		Duration:      s.duration,
		Volume:        s.volume,
		Metadata:      meta,
	}
}

// notifyLocked snapshots under the lock, releases it and fans out. Callers
// must hold the lock and must not touch state afterwards.
func (s *Store) notifyLocked() {
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// SetResource installs res as the one live handle for podcastID.
//
// Same podcast with a live handle is a no-op refresh: metadata is updated if
// supplied, position and playing flag are preserved, nothing is recreated.
// Otherwise the old handle is silenced and destroyed before the new one is
// initialized; the playing flag carries over as the target state so views
// render correctly while the controller resumes playback asynchronously.
// Position carries over only when the podcast is unchanged.
func (s *Store) SetResource(res Resource, podcastID string, meta *Metadata) {
	s.mu.Lock()

	if podcastID == s.podcastID && s.resource != nil {
		if meta != nil {
			m := *meta
			s.metadata = &m
		}
		if res != nil && res != s.resource {
			// Redundant handle from a racing caller; the invariant is one
			// live resource, so the newcomer is silenced.
			res.Destroy()
		}
		s.notifyLocked()
		return
	}

	wasPlaying := s.isPlaying
	lastPosition := s.position
	samePodcast := podcastID == s.podcastID

	if old := s.resource; old != nil {
		old.Destroy()
	}

	s.resource = res
	s.podcastID = podcastID
	if meta != nil {
		m := *meta
		s.metadata = &m
	}

	startPos := 0.0
	if samePodcast {
		startPos = lastPosition
	} else {
		s.duration = 0
	}
	s.position = startPos
	s.isPlaying = wasPlaying
	s.pendingResume = false

	if res != nil {
		res.Seek(startPos)
		res.SetVolume(s.volume)
	}

	log.Debug().
		Str("podcast", podcastID).
		Bool("wasPlaying", wasPlaying).
		Float64("position", startPos).
		Msg("Resource installed")

	s.notifyLocked()
}

// SetMetadata replaces the retained display metadata without touching the
// resource.
func (s *Store) SetMetadata(meta Metadata) {
	s.mu.Lock()
	m := meta
	s.metadata = &m
	s.notifyLocked()
}

// Play records the playing intent. The asynchronous platform start is the
// controller's job; the flag is set immediately so dependent views render
// without waiting for it to resolve.
func (s *Store) Play() {
	s.mu.Lock()
	s.isPlaying = true
	s.notifyLocked()
}

// Pause pauses the live resource and records the flag in the same turn.
func (s *Store) Pause() {
	s.mu.Lock()
	if s.resource != nil {
		s.resource.Pause()
	}
	s.isPlaying = false
	s.pendingResume = false
	s.notifyLocked()
}

// ForcePaused records a playback failure: the flag is forced false without
// touching the resource (the platform never started it).
func (s *Store) ForcePaused() {
	s.mu.Lock()
	s.isPlaying = false
	s.pendingResume = false
	s.notifyLocked()
}

// Seek moves the live resource and the canonical position atomically.
func (s *Store) Seek(seconds float64) {
	s.mu.Lock()
	pos := clampPosition(seconds, s.duration)
	if s.resource != nil {
		s.resource.Seek(pos)
	}
	s.position = pos
	s.notifyLocked()
}

// UpdatePosition records a position reported by the resource itself.
func (s *Store) UpdatePosition(seconds float64) {
	s.mu.Lock()
	s.position = clampPosition(seconds, s.duration)
	s.notifyLocked()
}

// SetDuration records the duration once the resource has metadata.
func (s *Store) SetDuration(seconds float64) {
	s.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	s.duration = seconds
	s.position = clampPosition(s.position, s.duration)
	s.notifyLocked()
}

// SetVolume sets the resource volume and the canonical value atomically.
func (s *Store) SetVolume(v float64) {
	s.mu.Lock()
	vol := clampVolume(v)
	if s.resource != nil {
		s.resource.SetVolume(vol)
	}
	s.volume = vol
	s.notifyLocked()
}

// MarkEnded records that the stream finished: position pins to the duration
// and the playing flag drops.
func (s *Store) MarkEnded() {
	s.mu.Lock()
	if s.duration > 0 {
		s.position = s.duration
	}
	s.isPlaying = false
	s.pendingResume = false
	s.notifyLocked()
}

// DetachResource destroys the live handle while retaining metadata and
// position, so continuity can recreate playback later. If playback was
// active the playing flag stays true with PendingResume set, per the
// transient exception to the no-resource/not-playing invariant. Returns
// whether playback was active at detach time.
func (s *Store) DetachResource() bool {
	s.mu.Lock()
	wasPlaying := s.isPlaying
	if s.resource != nil {
		s.resource.Destroy()
		s.resource = nil
	}
	s.pendingResume = wasPlaying
	log.Debug().
		Str("podcast", s.podcastID).
		Bool("wasPlaying", wasPlaying).
		Float64("position", s.position).
		Msg("Resource detached, metadata retained")
	s.notifyLocked()
	return wasPlaying
}

// ClearPendingResume drops the pending-resume flag after the controller has
// confirmed (or abandoned) the recreated playback.
func (s *Store) ClearPendingResume() {
	s.mu.Lock()
	s.pendingResume = false
	s.notifyLocked()
}

// Clear is the full teardown: the resource is destroyed and podcast, metadata
// and position are discarded. This is the only operation that discards
// metadata. Volume survives.
func (s *Store) Clear() {
	s.mu.Lock()
	if s.resource != nil {
		s.resource.Destroy()
		s.resource = nil
	}
	s.podcastID = ""
	s.metadata = nil
	s.isPlaying = false
	s.pendingResume = false
	s.position = 0
	s.duration = 0
	log.Debug().Msg("Playback store cleared")
	s.notifyLocked()
}
