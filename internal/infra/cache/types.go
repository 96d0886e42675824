package cache

import "time"

// CachedPodcast is a locally cached podcast record, retained so continuity
// recreation works without a round trip to the hosted service.
type CachedPodcast struct {
	ID           string
	Title        string
	AudioURL     string
	ImageURL     string
	CourseID     string
	DurationHint float64
	CachedAt     time.Time
}

// CachedCourse is a locally cached course record.
type CachedCourse struct {
	ID       string
	Title    string
	ImageURL string
	CachedAt time.Time
}

// Stats describes the cache contents.
type Stats struct {
	PodcastCount    int
	CourseCount     int
	PendingProgress int
	SchemaVersion   string
	LastUpdated     time.Time
}
