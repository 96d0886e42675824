// Package playback holds the canonical playback state shared by every view.
package playback

import "math"

// Snapshot is an immutable copy of the canonical state, delivered to
// subscribers and handed to anything that renders or persists playback.
type Snapshot struct {
	PodcastID     string
	HasResource   bool
	IsPlaying     bool
	PendingResume bool
	Position      float64 // seconds
	Duration      float64 // seconds, 0 until metadata is known
	Volume        float64 // 0..1
	Metadata      *Metadata
}

// clampPosition keeps a position finite, non-negative and within the known
// duration.
func clampPosition(pos, duration float64) float64 {
	if math.IsNaN(pos) || math.IsInf(pos, 0) || pos < 0 {
		return 0
	}
	if duration > 0 && pos > duration {
		return duration
	}
	return pos
}

// clampVolume keeps a volume inside 0..1.
func clampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
