package socketio

import (
	"sync"

	"github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/studycast/studycast-playback-backend/internal/domain/viewsync"
)

// session is one connected view: its socket, its sync adapter and the
// debouncer batching its outgoing pushes.
type session struct {
	server  *Server
	client  *socket.Socket
	adapter *viewsync.Adapter
	deb     *PushDebouncer

	mu   sync.Mutex
	last viewsync.Mirror
}

func newSession(s *Server, client *socket.Socket) *session {
	sess := &session{
		server: s,
		client: client,
	}
	sess.deb = NewPushDebouncer(pushWindow, sess.pushState, sess.pushPosition)
	sess.adapter = viewsync.Attach(s.store, s.ctrl, s.policy, sess.onMirror)
	sess.last = sess.adapter.Mirror()
	return sess
}

// onMirror schedules a push whenever the view's mirror changes. A change that
// only moves the playhead gets the lightweight position push; anything else
// gets the full state push.
func (sess *session) onMirror(m viewsync.Mirror) {
	sess.mu.Lock()
	last := sess.last
	sess.last = m
	sess.mu.Unlock()

	kind := KindState
	if m.PodcastID == last.PodcastID &&
		m.IsPlaying == last.IsPlaying &&
		m.Duration == last.Duration &&
		m.Volume == last.Volume {
		kind = KindPosition
	}
	sess.deb.Trigger(kind)
}

// pushState sends the full player payload to this view.
func (sess *session) pushState() {
	m := sess.adapter.Mirror()
	snap := sess.server.store.Snapshot()
	sess.client.Emit("pushPlayerState", statePayloadOfMirror(m, snap, sess.server.ctrl.Phase()))
}

// pushPosition sends only the playhead position.
func (sess *session) pushPosition() {
	m := sess.adapter.Mirror()
	sess.client.Emit("pushPosition", positionPayload{Position: m.Position})
}

// pushToast sends a toast message to this view only.
func (sess *session) pushToast(message string) {
	sess.client.Emit("pushToast", toastPayload{Message: message})
}

// close stops pushes and drops the store subscription. Playback itself is
// untouched; continuity outlives any single view.
func (sess *session) close() {
	sess.deb.Stop()
	sess.adapter.Detach()
}
