// Package catalog resolves course and podcast records into the playback
// metadata the continuity layer plays from, with a local read-through cache
// so recreation works without a round trip to the hosted service.
package catalog

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
	"github.com/studycast/studycast-playback-backend/internal/infra/backend"
	"github.com/studycast/studycast-playback-backend/internal/infra/cache"
)

// Source is the slice of the hosted service the catalog reads.
type Source interface {
	FetchPodcast(ctx context.Context, id string) (backend.Podcast, error)
	FetchCourse(ctx context.Context, id string) (backend.Course, error)
}

// Store is the local cache the catalog reads through.
type Store interface {
	GetPodcast(id string) (*cache.CachedPodcast, error)
	UpsertPodcast(p *cache.CachedPodcast) error
	GetCourse(id string) (*cache.CachedCourse, error)
	UpsertCourse(c *cache.CachedCourse) error
}

// DefaultTTL is how long a cached record is served without a refetch.
const DefaultTTL = time.Hour

// Service resolves playback metadata.
type Service struct {
	source Source
	store  Store
	ttl    time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTTL overrides the cache freshness window.
func WithTTL(d time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = d }
}

// NewService creates a catalog service. store may be nil to disable caching.
func NewService(source Source, store Store, opts ...ServiceOption) *Service {
	s := &Service{
		source: source,
		store:  store,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveMetadata builds the playback metadata for a podcast: title, course
// name, artwork and the audio URL. NotFoundError propagates from the source.
func (s *Service) ResolveMetadata(ctx context.Context, podcastID string) (playback.Metadata, error) {
	p, err := s.podcast(ctx, podcastID)
	if err != nil {
		return playback.Metadata{}, err
	}

	courseName := ""
	if p.CourseID != "" {
		course, err := s.course(ctx, p.CourseID)
		if err != nil {
			// Metadata is still usable without the course name.
			log.Warn().Err(err).Str("course", p.CourseID).Msg("Course lookup failed")
		} else {
			courseName = course.Title
		}
	}

	return playback.Metadata{
		PodcastID:  p.ID,
		Title:      p.Title,
		CourseName: courseName,
		ImageURL:   p.ImageURL,
		AudioURL:   p.AudioURL,
	}, nil
}

func (s *Service) podcast(ctx context.Context, id string) (backend.Podcast, error) {
	if s.store != nil {
		cached, err := s.store.GetPodcast(id)
		if err != nil {
			log.Warn().Err(err).Str("podcast", id).Msg("Podcast cache read failed")
		} else if cached != nil && time.Since(cached.CachedAt) < s.ttl {
			return backend.Podcast{
				ID:           cached.ID,
				Title:        cached.Title,
				AudioURL:     cached.AudioURL,
				ImageURL:     cached.ImageURL,
				CourseID:     cached.CourseID,
				DurationHint: cached.DurationHint,
			}, nil
		}
	}

	p, err := s.source.FetchPodcast(ctx, id)
	if err != nil {
		return backend.Podcast{}, err
	}

	if s.store != nil {
		if err := s.store.UpsertPodcast(&cache.CachedPodcast{
			ID:           p.ID,
			Title:        p.Title,
			AudioURL:     p.AudioURL,
			ImageURL:     p.ImageURL,
			CourseID:     p.CourseID,
			DurationHint: p.DurationHint,
		}); err != nil {
			log.Warn().Err(err).Str("podcast", id).Msg("Podcast cache write failed")
		}
	}
	return p, nil
}

func (s *Service) course(ctx context.Context, id string) (backend.Course, error) {
	if s.store != nil {
		cached, err := s.store.GetCourse(id)
		if err != nil {
			log.Warn().Err(err).Str("course", id).Msg("Course cache read failed")
		} else if cached != nil && time.Since(cached.CachedAt) < s.ttl {
			return backend.Course{ID: cached.ID, Title: cached.Title, ImageURL: cached.ImageURL}, nil
		}
	}

	course, err := s.source.FetchCourse(ctx, id)
	if err != nil {
		return backend.Course{}, err
	}

	if s.store != nil {
		if err := s.store.UpsertCourse(&cache.CachedCourse{
			ID:       course.ID,
			Title:    course.Title,
			ImageURL: course.ImageURL,
		}); err != nil {
			log.Warn().Err(err).Str("course", id).Msg("Course cache write failed")
		}
	}
	return course, nil
}
