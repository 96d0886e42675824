package mpdaudio

import (
	"testing"

	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
)

// statusResource builds a resource with callbacks wired to counters, without
// any daemon behind it. applyStatus is pure state folding.
func statusResource() (*resource, *callbackLog) {
	cl := &callbackLog{}
	r := &resource{
		url: "https://cdn.example.com/p1.mp3",
		cb: playback.Callbacks{
			OnTimeUpdate: func(s float64) { cl.times = append(cl.times, s) },
			OnDuration:   func(s float64) { cl.durations = append(cl.durations, s) },
			OnReady:      func() { cl.ready++ },
			OnEnded:      func() { cl.ended++ },
			OnError:      func(err error) { cl.errs = append(cl.errs, err) },
		},
		stopWatch: func() {},
		done:      make(chan struct{}),
	}
	return r, cl
}

type callbackLog struct {
	times     []float64
	durations []float64
	ready     int
	ended     int
	errs      []error
}

func TestApplyStatusReportsDurationAndReadyOnce(t *testing.T) {
	r, cl := statusResource()

	r.applyStatus(map[string]string{"state": "play", "elapsed": "1.5", "duration": "600"})
	r.applyStatus(map[string]string{"state": "play", "elapsed": "2.0", "duration": "600"})

	if len(cl.durations) != 1 || cl.durations[0] != 600 {
		t.Errorf("durations = %v, want one report of 600", cl.durations)
	}
	if cl.ready != 1 {
		t.Errorf("ready fired %d times, want once", cl.ready)
	}
	if len(cl.times) != 2 {
		t.Errorf("time updates = %v, want 2", cl.times)
	}
}

func TestApplyStatusPauseDoesNotTick(t *testing.T) {
	r, cl := statusResource()

	r.applyStatus(map[string]string{"state": "pause", "elapsed": "30", "duration": "600"})

	if len(cl.times) != 0 {
		t.Errorf("paused stream emitted time updates: %v", cl.times)
	}
	if !r.Paused() {
		t.Error("resource should report paused")
	}
	if r.Position() != 30 {
		t.Errorf("Position = %v, want 30 retained from paused status", r.Position())
	}
}

func TestApplyStatusNaturalEnd(t *testing.T) {
	r, cl := statusResource()

	r.applyStatus(map[string]string{"state": "play", "elapsed": "599.5", "duration": "600"})
	r.applyStatus(map[string]string{"state": "stop", "elapsed": "0", "duration": "600"})

	if cl.ended != 1 {
		t.Errorf("ended fired %d times, want once", cl.ended)
	}

	// A repeated stop status must not re-fire.
	r.applyStatus(map[string]string{"state": "stop", "elapsed": "0", "duration": "600"})
	if cl.ended != 1 {
		t.Errorf("ended re-fired on repeated stop: %d", cl.ended)
	}
}

func TestApplyStatusEarlyStopIsNotAnEnd(t *testing.T) {
	r, cl := statusResource()

	r.applyStatus(map[string]string{"state": "play", "elapsed": "100", "duration": "600"})
	r.applyStatus(map[string]string{"state": "stop", "elapsed": "0", "duration": "600"})

	if cl.ended != 0 {
		t.Errorf("mid-stream stop treated as natural end: %d", cl.ended)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	r, _ := statusResource()
	r.conn = NewConn("localhost", 16600, "") // unreachable; Stop failure is logged only

	r.Destroy()
	r.Destroy() // second destroy must not panic on the closed channel
}
