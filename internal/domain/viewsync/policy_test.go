package viewsync_test

import (
	"testing"

	"github.com/studycast/studycast-playback-backend/internal/domain/viewsync"
)

func TestShouldAdopt(t *testing.T) {
	policy := viewsync.DefaultPolicy()
	base := viewsync.Mirror{
		PodcastID: "p1",
		IsPlaying: true,
		Position:  100,
		Duration:  300,
		Volume:    0.8,
	}

	tests := []struct {
		name      string
		canonical func(m viewsync.Mirror) viewsync.Mirror
		want      bool
	}{
		{"identical", func(m viewsync.Mirror) viewsync.Mirror { return m }, false},
		{"podcast changed", func(m viewsync.Mirror) viewsync.Mirror { m.PodcastID = "p2"; return m }, true},
		{"playing flag changed", func(m viewsync.Mirror) viewsync.Mirror { m.IsPlaying = false; return m }, true},
		{"duration changed", func(m viewsync.Mirror) viewsync.Mirror { m.Duration = 301; return m }, true},
		{"position drift below threshold", func(m viewsync.Mirror) viewsync.Mirror { m.Position = 105; return m }, false},
		{"position drift at threshold", func(m viewsync.Mirror) viewsync.Mirror { m.Position = 110; return m }, false},
		{"position drift above threshold", func(m viewsync.Mirror) viewsync.Mirror { m.Position = 111; return m }, true},
		{"position drift behind", func(m viewsync.Mirror) viewsync.Mirror { m.Position = 85; return m }, true},
		{"volume drift below threshold", func(m viewsync.Mirror) viewsync.Mirror { m.Volume = 0.9; return m }, false},
		{"volume drift above threshold", func(m viewsync.Mirror) viewsync.Mirror { m.Volume = 0.6; return m }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.ShouldAdopt(base, tt.canonical(base))
			if got != tt.want {
				t.Errorf("ShouldAdopt = %v, want %v", got, tt.want)
			}
		})
	}
}
