// Package viewsync bridges the playback store to a view's local render state
// without feedback loops. Each consuming view (full player, mini player,
// progress bar) owns one Adapter; the adapter's mirror is never the source
// of truth.
package viewsync

import "time"

// Policy is the reconciliation policy applied to store echoes. A view's own
// optimistic updates (a drag-seek in flight, a just-pressed pause) must not
// be clobbered by low-latency echoes of stale canonical values, so small
// deltas are ignored and a short window after every local write suppresses
// re-sync entirely.
type Policy struct {
	// PositionThreshold is the canonical-vs-local position delta, in
	// seconds, above which the mirror re-syncs.
	PositionThreshold float64

	// VolumeThreshold is the volume delta (0..1) above which the mirror
	// re-syncs.
	VolumeThreshold float64

	// SuppressionWindow is how long after a local optimistic write store
	// echoes are ignored outright.
	SuppressionWindow time.Duration
}

// DefaultPolicy returns the thresholds used by the shipped views.
func DefaultPolicy() Policy {
	return Policy{
		PositionThreshold: 10,
		VolumeThreshold:   0.15,
		SuppressionWindow: 50 * time.Millisecond,
	}
}

// Mirror is a view's local copy of the playback state.
type Mirror struct {
	PodcastID string
	IsPlaying bool
	Position  float64
	Duration  float64
	Volume    float64
}

// ShouldAdopt reports whether the canonical state differs enough from the
// local mirror to be worth adopting. Flag and identity changes always win;
// numeric drift must clear the thresholds.
func (p Policy) ShouldAdopt(local, canonical Mirror) bool {
	if local.PodcastID != canonical.PodcastID {
		return true
	}
	if local.IsPlaying != canonical.IsPlaying {
		return true
	}
	if local.Duration != canonical.Duration {
		return true
	}
	if abs(local.Position-canonical.Position) > p.PositionThreshold {
		return true
	}
	if abs(local.Volume-canonical.Volume) > p.VolumeThreshold {
		return true
	}
	return false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
