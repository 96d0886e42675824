// Package main is the entry point for the StudyCast playback backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/studycast/studycast-playback-backend/internal/domain/catalog"
	"github.com/studycast/studycast-playback-backend/internal/domain/continuity"
	"github.com/studycast/studycast-playback-backend/internal/domain/playback"
	"github.com/studycast/studycast-playback-backend/internal/domain/progress"
	"github.com/studycast/studycast-playback-backend/internal/infra/backend"
	"github.com/studycast/studycast-playback-backend/internal/infra/cache"
	"github.com/studycast/studycast-playback-backend/internal/infra/mpdaudio"
	"github.com/studycast/studycast-playback-backend/internal/transport/socketio"
	"github.com/studycast/studycast-playback-backend/internal/version"
)

func main() {
	// Command line flags
	port := flag.String("port", "3001", "HTTP server port")
	mpdHost := flag.String("mpd-host", "localhost", "MPD host")
	mpdPort := flag.Int("mpd-port", 6600, "MPD port")
	mpdPassword := flag.String("mpd-password", "", "MPD password")
	backendURL := flag.String("backend-url", "", "Hosted service base URL")
	backendKey := flag.String("backend-key", "", "Hosted service API key")
	userID := flag.String("user", "", "Signed-in user ID (empty for anonymous)")
	dbPath := flag.String("db", cache.DefaultDBPath, "Cache database path")
	maxRemote := flag.Int("max-remote", 4, "Maximum concurrent remote views")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Podcast Playback Backend")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", *port).
		Str("mpd_host", *mpdHost).
		Int("mpd_port", *mpdPort).
		Str("backend_url", *backendURL).
		Bool("key_set", *backendKey != "").
		Bool("anonymous", *userID == "").
		Msg("Configuration")

	// MPD connection
	conn := mpdaudio.NewConn(*mpdHost, *mpdPort, *mpdPassword)
	if err := conn.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MPD")
	}
	defer conn.Close()

	if err := conn.Ping(); err != nil {
		log.Fatal().Err(err).Msg("MPD ping failed")
	}
	log.Info().Msg("MPD connection verified")

	// Local cache
	db := cache.NewDB(*dbPath)
	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer db.Close()
	dao := cache.NewDAO(db)

	// Hosted service client
	client := backend.NewClient(*backendURL, *backendKey)
	defer client.Close()
	client.SetUserID(*userID)

	// Playback state machine
	store := playback.NewStore()
	factory := mpdaudio.NewFactory(conn)
	ctrl := continuity.New(store, factory)
	defer ctrl.Close()

	cat := catalog.NewService(client, dao)

	// Progress recording
	recorder := progress.NewRecorder(store, client, progress.WithQueue(dao))
	ctrl.OnEnded(recorder.OnEnded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recorder.Run(ctx)

	// Socket.io server
	socketServer, err := socketio.NewServer(store, ctrl, cat, *maxRemote)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	// HTTP surface
	mux := http.NewServeMux()

	mux.Handle("/socket.io/", socketServer)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","mpd":"disconnected"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","mpd":"connected"}`))
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	// REST fallback for views that have not established a socket yet
	mux.HandleFunc("/api/v1/getState", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(socketServer.CurrentState())
	})

	mux.HandleFunc("/api/v1/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.GetStats()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()

		// Flush the last listening position before the process exits.
		recorder.Close()
		store.Clear()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", ":"+*port).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}
