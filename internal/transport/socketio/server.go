// Package socketio exposes the playback state machine to app views over
// Socket.io. Each connected view gets its own sync adapter and mirror; user
// intents funnel through the continuity controller.
package socketio

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/studycast/studycast-playback-backend/internal/domain/catalog"
	"github.com/studycast/studycast-playback-backend/internal/domain/continuity"
	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
	"github.com/studycast/studycast-playback-backend/internal/domain/viewsync"
)

const (
	// pushWindow is the debounce window for outgoing state pushes.
	pushWindow = 50 * time.Millisecond

	// resolveTimeout bounds catalog lookups triggered by playPodcast.
	resolveTimeout = 10 * time.Second
)

// Server handles Socket.io connections and events.
type Server struct {
	io      *socket.Server
	store   *playback.Store
	ctrl    *continuity.Controller
	catalog *catalog.Service
	policy  viewsync.Policy
	limiter *ConnectionLimiter

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewServer creates a Socket.io server bound to the playback state machine.
func NewServer(store *playback.Store, ctrl *continuity.Controller, cat *catalog.Service, maxExternal int) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	server := socket.NewServer(nil, opts)

	s := &Server{
		io:       server,
		store:    store,
		ctrl:     ctrl,
		catalog:  cat,
		policy:   viewsync.DefaultPolicy(),
		limiter:  NewConnectionLimiter(maxExternal),
		sessions: make(map[string]*session),
	}

	// Controller failure toasts reach every connected view.
	ctrl.SetNotifyFunc(s.BroadcastToast)

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		remoteIP := ""
		if h := client.Handshake(); h != nil {
			remoteIP = h.Address
		}

		_, evictedID := s.limiter.TryAdd(clientID, remoteIP)
		if evictedID != "" {
			s.evict(evictedID)
		}

		log.Info().Str("id", clientID).Str("ip", remoteIP).Msg("View connected")

		sess := newSession(s, client)
		s.mu.Lock()
		s.sessions[clientID] = sess
		s.mu.Unlock()

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			sess.pushState()
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("View disconnected")

			s.limiter.Remove(clientID)
			sess.close()

			s.mu.Lock()
			delete(s.sessions, clientID)
			remaining := len(s.sessions)
			s.mu.Unlock()

			// No view left: detach the resource but keep continuity state so
			// the next view can pick up where this one stopped.
			if remaining == 0 {
				s.ctrl.Suspend()
			}
		})

		client.On("getState", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getState")
			sess.pushState()
		})

		client.On("playPodcast", func(args ...any) {
			podcastID := stringField(args, "podcastId")
			if podcastID == "" {
				log.Warn().Str("id", clientID).Msg("playPodcast without podcastId")
				return
			}
			log.Debug().Str("id", clientID).Str("podcast", podcastID).Msg("playPodcast")
			go s.playPodcast(sess, podcastID)
		})

		client.On("play", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("play")
			sess.adapter.Play()
		})

		client.On("pause", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("pause")
			sess.adapter.Pause()
		})

		client.On("seek", func(args ...any) {
			if len(args) > 0 {
				if pos, ok := args[0].(float64); ok {
					log.Debug().Str("id", clientID).Float64("pos", pos).Msg("seek")
					sess.adapter.Seek(pos)
				}
			}
		})

		client.On("skip", func(args ...any) {
			if len(args) > 0 {
				if delta, ok := args[0].(float64); ok {
					log.Debug().Str("id", clientID).Float64("delta", delta).Msg("skip")
					sess.adapter.SkipBy(delta)
				}
			}
		})

		client.On("volume", func(args ...any) {
			if len(args) > 0 {
				if vol, ok := args[0].(float64); ok {
					log.Debug().Str("id", clientID).Float64("vol", vol).Msg("volume")
					sess.adapter.SetVolume(vol)
				}
			}
		})

		client.On("continuePlayback", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("continuePlayback")
			if err := sess.adapter.Continue(); err != nil {
				log.Error().Err(err).Msg("Continue failed")
				sess.pushToast("Could not resume audio")
			}
		})

		client.On("visible", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("visible")
			s.ctrl.OnVisible()
			sess.pushState()
		})

		client.On("hidden", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("hidden")
		})
	})
}

// playPodcast resolves catalog metadata and hands it to the session adapter.
func (s *Server) playPodcast(sess *session, podcastID string) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	meta, err := s.catalog.ResolveMetadata(ctx, podcastID)
	if err != nil {
		log.Error().Err(err).Str("podcast", podcastID).Msg("Podcast lookup failed")
		sess.pushToast("Podcast not found")
		return
	}

	if err := sess.adapter.PlayPodcast(meta); err != nil {
		log.Error().Err(err).Str("podcast", podcastID).Msg("PlayPodcast failed")
		sess.pushToast("Could not play audio")
	}
}

// evict disconnects a client that lost its connection slot.
func (s *Server) evict(clientID string) {
	s.mu.RLock()
	sess := s.sessions[clientID]
	s.mu.RUnlock()

	if sess == nil {
		return
	}
	log.Info().Str("id", clientID).Msg("Evicting oldest external view")
	sess.client.Emit("pushToast", toastPayload{Message: "Connected from another device"})
	sess.client.Disconnect(true)
}

// BroadcastToast sends a toast message to all connected views.
func (s *Server) BroadcastToast(message string) {
	s.io.Emit("pushToast", toastPayload{Message: message})
}

// CurrentState returns the canonical player payload, also served over HTTP.
func (s *Server) CurrentState() StatePayload {
	return statePayloadOf(s.store.Snapshot(), s.ctrl.Phase())
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server.
func (s *Server) Close() error {
	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.close()
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	s.io.Close(nil)
	return nil
}

// stringField extracts a string value from the first map-shaped event arg.
func stringField(args []any, key string) string {
	if len(args) == 0 {
		return ""
	}
	m, ok := args[0].(map[string]interface{})
	if !ok {
		return ""
	}
	v, _ := m[key].(string)
	return v
}
