package backend

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"resty.dev/v3"
)

const (
	// DefaultTimeout for service requests.
	DefaultTimeout = 15 * time.Second
)

// Client talks to the hosted service over its JSON REST surface.
type Client struct {
	http *resty.Client

	mu     sync.RWMutex
	userID string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithHTTPTransport overrides the transport (useful for testing).
func WithHTTPTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) { c.http.SetTransport(rt) }
}

// NewClient creates a client for the service at baseURL, authenticating with
// the given API key.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultTimeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		hc.SetAuthToken(apiKey)
	}

	c := &Client{http: hc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// SetUserID records the signed-in user for subsequent progress/XP writes.
// An empty string means anonymous.
func (c *Client) SetUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// CurrentUserID returns the signed-in user, or "" for anonymous sessions.
func (c *Client) CurrentUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// FetchPodcast retrieves one podcast record.
func (c *Client) FetchPodcast(ctx context.Context, id string) (Podcast, error) {
	var p Podcast
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&p).
		Get("/podcasts/" + id)
	if err != nil {
		return Podcast{}, fmt.Errorf("fetch podcast %s: %w", id, err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return Podcast{}, &NotFoundError{Kind: "podcast", ID: id}
	}
	if res.IsError() {
		return Podcast{}, fmt.Errorf("fetch podcast %s: unexpected status %d", id, res.StatusCode())
	}
	return p, nil
}

// FetchCourse retrieves one course record.
func (c *Client) FetchCourse(ctx context.Context, id string) (Course, error) {
	var course Course
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&course).
		Get("/courses/" + id)
	if err != nil {
		return Course{}, fmt.Errorf("fetch course %s: %w", id, err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return Course{}, &NotFoundError{Kind: "course", ID: id}
	}
	if res.IsError() {
		return Course{}, fmt.Errorf("fetch course %s: unexpected status %d", id, res.StatusCode())
	}
	return course, nil
}

// SaveProgress upserts the listening position, keyed by (user, podcast) on
// the service side.
func (c *Client) SaveProgress(ctx context.Context, userID, podcastID string, positionSeconds float64, completed bool) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(progressPayload{
			UserID:    userID,
			PodcastID: podcastID,
			Position:  positionSeconds,
			Completed: completed,
		}).
		Post("/progress")
	if err != nil {
		return &PersistenceError{Op: "save progress", Err: err}
	}
	if res.IsError() {
		return &PersistenceError{Op: "save progress", Err: fmt.Errorf("status %d", res.StatusCode())}
	}
	return nil
}

// AwardXP credits gamification points. Each award carries a fresh event id
// so the service can deduplicate retries.
func (c *Client) AwardXP(ctx context.Context, userID string, amount int, reason string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(xpPayload{
			EventID: uuid.New().String(),
			UserID:  userID,
			Amount:  amount,
			Reason:  reason,
		}).
		Post("/xp")
	if err != nil {
		return &PersistenceError{Op: "award xp", Err: err}
	}
	if res.IsError() {
		return &PersistenceError{Op: "award xp", Err: fmt.Errorf("status %d", res.StatusCode())}
	}
	log.Debug().Str("user", userID).Int("amount", amount).Str("reason", reason).Msg("XP awarded")
	return nil
}

// RecordDailyStreak reports whether this was the user's first streak call
// today, gating one-time streak XP.
func (c *Client) RecordDailyStreak(ctx context.Context, userID string) (bool, error) {
	var out streakResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(streakPayload{UserID: userID}).
		SetResult(&out).
		Post("/streak")
	if err != nil {
		return false, &PersistenceError{Op: "record streak", Err: err}
	}
	if res.IsError() {
		return false, &PersistenceError{Op: "record streak", Err: fmt.Errorf("status %d", res.StatusCode())}
	}
	return out.First, nil
}
