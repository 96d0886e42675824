// Package backend is the client for the hosted database/auth service that
// owns courses, podcasts, users, progress and XP. The service is opaque;
// this client is the contract boundary the rest of the code programs
// against.
package backend

// Podcast is one playable episode record.
type Podcast struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	AudioURL     string  `json:"audioUrl"`
	ImageURL     string  `json:"imageUrl,omitempty"`
	CourseID     string  `json:"courseId"`
	DurationHint float64 `json:"durationHint,omitempty"` // seconds, advisory
}

// Course is the course a podcast belongs to.
type Course struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// progressPayload is the upsert body for a progress save.
type progressPayload struct {
	UserID    string  `json:"userId"`
	PodcastID string  `json:"podcastId"`
	Position  float64 `json:"positionSeconds"`
	Completed bool    `json:"completed"`
}

// xpPayload is the body for an XP award. EventID makes retried awards
// idempotent on the service side.
type xpPayload struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
	Amount  int    `json:"amount"`
	Reason  string `json:"reason"`
}

// streakPayload is the body for a daily-streak record.
type streakPayload struct {
	UserID string `json:"userId"`
}

// streakResponse reports whether the call was the first today.
type streakResponse struct {
	First bool `json:"first"`
}
