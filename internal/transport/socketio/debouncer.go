package socketio

import (
	"sync"
	"time"
)

// Push kinds a session can schedule. A state push carries the full player
// payload; a position push is a lightweight playhead tick.
const (
	KindState    = "state"
	KindPosition = "position"
)

// PushDebouncer collapses rapid mirror changes into batched pushes. Multiple
// changes within the window result in one push per affected kind, and a
// pending state push absorbs any pending position push since it already
// carries the playhead.
type PushDebouncer struct {
	window           time.Duration
	stateCallback    func()
	positionCallback func()

	mu              sync.Mutex
	pendingState    bool
	pendingPosition bool
	timer           *time.Timer
	stopped         bool
}

// NewPushDebouncer creates a debouncer with the given window duration.
func NewPushDebouncer(window time.Duration, stateCallback, positionCallback func()) *PushDebouncer {
	return &PushDebouncer{
		window:           window,
		stateCallback:    stateCallback,
		positionCallback: positionCallback,
	}
}

// Trigger records that a push of the given kind is wanted. The actual push
// is deferred until the window elapses without further triggers.
func (d *PushDebouncer) Trigger(kind string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	switch kind {
	case KindState:
		d.pendingState = true
	case KindPosition:
		d.pendingPosition = true
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush fires callbacks for any pending kinds and resets them.
func (d *PushDebouncer) flush() {
	d.mu.Lock()
	doState := d.pendingState
	doPosition := d.pendingPosition && !d.pendingState
	d.pendingState = false
	d.pendingPosition = false
	d.mu.Unlock()

	if doState && d.stateCallback != nil {
		d.stateCallback()
	}
	if doPosition && d.positionCallback != nil {
		d.positionCallback()
	}
}

// Stop prevents any further pushes from firing.
func (d *PushDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pendingState = false
	d.pendingPosition = false
}
