package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/studycast/studycast-playback-backend/internal/domain/progress"
)

// DAO provides data access operations for the cache.
type DAO struct {
	db *DB
}

// NewDAO creates a new DAO instance.
func NewDAO(db *DB) *DAO {
	return &DAO{db: db}
}

// --- Podcast operations ---

// UpsertPodcast inserts or updates a cached podcast record.
func (dao *DAO) UpsertPodcast(p *CachedPodcast) error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	now := time.Now().Format(time.RFC3339)
	_, err := db.Exec(`
		INSERT INTO podcasts (id, title, audio_url, image_url, course_id, duration_hint, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = ?, audio_url = ?, image_url = ?, course_id = ?, duration_hint = ?, cached_at = ?
	`,
		p.ID, p.Title, p.AudioURL, p.ImageURL, p.CourseID, p.DurationHint, now,
		p.Title, p.AudioURL, p.ImageURL, p.CourseID, p.DurationHint, now,
	)
	return err
}

// GetPodcast retrieves a cached podcast by ID. Returns (nil, nil) on a miss.
func (dao *DAO) GetPodcast(id string) (*CachedPodcast, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	p := &CachedPodcast{}
	var imageURL, courseID, cachedAt sql.NullString
	err := db.QueryRow(`
		SELECT id, title, audio_url, image_url, course_id, duration_hint, cached_at
		FROM podcasts WHERE id = ?
	`, id).Scan(&p.ID, &p.Title, &p.AudioURL, &imageURL, &courseID, &p.DurationHint, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.ImageURL = imageURL.String
	p.CourseID = courseID.String
	if cachedAt.Valid {
		p.CachedAt, _ = time.Parse(time.RFC3339, cachedAt.String)
	}
	return p, nil
}

// --- Course operations ---

// UpsertCourse inserts or updates a cached course record.
func (dao *DAO) UpsertCourse(c *CachedCourse) error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	now := time.Now().Format(time.RFC3339)
	_, err := db.Exec(`
		INSERT INTO courses (id, title, image_url, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = ?, image_url = ?, cached_at = ?
	`,
		c.ID, c.Title, c.ImageURL, now,
		c.Title, c.ImageURL, now,
	)
	return err
}

// GetCourse retrieves a cached course by ID. Returns (nil, nil) on a miss.
func (dao *DAO) GetCourse(id string) (*CachedCourse, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	c := &CachedCourse{}
	var imageURL, cachedAt sql.NullString
	err := db.QueryRow(`
		SELECT id, title, image_url, cached_at FROM courses WHERE id = ?
	`, id).Scan(&c.ID, &c.Title, &imageURL, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.ImageURL = imageURL.String
	if cachedAt.Valid {
		c.CachedAt, _ = time.Parse(time.RFC3339, cachedAt.String)
	}
	return c, nil
}

// --- Pending progress queue ---
// The DAO satisfies progress.Queue so failed saves survive restarts.

// Enqueue stores a progress save that failed to reach the hosted service.
// One row per (user, podcast): a newer position replaces the old one.
func (dao *DAO) Enqueue(p progress.PendingSave) error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	now := time.Now().Format(time.RFC3339)
	completed := 0
	if p.Completed {
		completed = 1
	}
	_, err := db.Exec(`
		INSERT INTO pending_progress (user_id, podcast_id, position, completed, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, podcast_id) DO UPDATE SET
			position = ?, completed = MAX(pending_progress.completed, ?), updated_at = ?
	`,
		p.UserID, p.PodcastID, p.Position, completed, now,
		p.Position, completed, now,
	)
	return err
}

// Next returns up to limit pending saves, oldest first.
func (dao *DAO) Next(limit int) ([]progress.PendingSave, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.Query(`
		SELECT user_id, podcast_id, position, completed
		FROM pending_progress ORDER BY updated_at ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progress.PendingSave
	for rows.Next() {
		var p progress.PendingSave
		var completed int
		if err := rows.Scan(&p.UserID, &p.PodcastID, &p.Position, &completed); err != nil {
			return nil, err
		}
		p.Completed = completed != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// Remove deletes a pending save after it reached the hosted service.
func (dao *DAO) Remove(userID, podcastID string) error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	_, err := db.Exec(`
		DELETE FROM pending_progress WHERE user_id = ? AND podcast_id = ?
	`, userID, podcastID)
	return err
}
