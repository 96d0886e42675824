package socketio

import (
	"github.com/studycast/studycast-playback-backend/internal/domain/continuity"
	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
	"github.com/studycast/studycast-playback-backend/internal/domain/viewsync"
)

// StatePayload is the full player state pushed to views and served over HTTP.
type StatePayload struct {
	PodcastID     string  `json:"podcastId"`
	Title         string  `json:"title"`
	CourseName    string  `json:"courseName"`
	ImageURL      string  `json:"imageUrl"`
	IsPlaying     bool    `json:"isPlaying"`
	PendingResume bool    `json:"pendingResume"`
	HasResource   bool    `json:"hasResource"`
	Position      float64 `json:"position"`
	Duration      float64 `json:"duration"`
	Volume        float64 `json:"volume"`
	Phase         string  `json:"phase"`
}

type positionPayload struct {
	Position float64 `json:"position"`
}

type toastPayload struct {
	Message string `json:"message"`
}

// statePayloadOf builds the payload from canonical state only.
func statePayloadOf(snap playback.Snapshot, phase continuity.Phase) StatePayload {
	p := StatePayload{
		PodcastID:     snap.PodcastID,
		IsPlaying:     snap.IsPlaying,
		PendingResume: snap.PendingResume,
		HasResource:   snap.HasResource,
		Position:      snap.Position,
		Duration:      snap.Duration,
		Volume:        snap.Volume,
		Phase:         phase.String(),
	}
	if snap.Metadata != nil {
		p.Title = snap.Metadata.Title
		p.CourseName = snap.Metadata.CourseName
		p.ImageURL = snap.Metadata.ImageURL
	}
	return p
}

// statePayloadOfMirror builds the payload a view sees: its own mirror values
// merged with the canonical metadata the mirror does not carry.
func statePayloadOfMirror(m viewsync.Mirror, snap playback.Snapshot, phase continuity.Phase) StatePayload {
	p := statePayloadOf(snap, phase)
	p.PodcastID = m.PodcastID
	p.IsPlaying = m.IsPlaying
	p.Position = m.Position
	p.Duration = m.Duration
	p.Volume = m.Volume
	return p
}
