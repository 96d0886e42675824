package playback_test

import (
	"errors"
	"testing"

	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
)

func TestMetadataValidate(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https url", "https://cdn.example.com/audio/ep1.mp3", false},
		{"valid http url", "http://cdn.example.com/ep1.mp3", false},
		{"empty url", "", true},
		{"missing scheme", "cdn.example.com/ep1.mp3", true},
		{"missing host", "https://", true},
		{"garbage", "::::not-a-url", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := playback.Metadata{
				PodcastID: "p1",
				Title:     "Photosynthesis",
				AudioURL:  tt.url,
			}
			err := meta.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate(%q) = nil, want error", tt.url)
				}
				var srcErr *playback.InvalidSourceError
				if !errors.As(err, &srcErr) {
					t.Errorf("Validate(%q) = %v, want InvalidSourceError", tt.url, err)
				}
			} else if err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tt.url, err)
			}
		})
	}
}
