package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-offline-player/internal/domain/player"
	"github.com/edumarques81/stellar-offline-player/internal/infra/connectivity"
	"github.com/edumarques81/stellar-offline-player/internal/infra/mpd"
	"github.com/edumarques81/stellar-offline-player/internal/infra/offline"
	"github.com/edumarques81/stellar-offline-player/internal/infra/remote"
	"github.com/edumarques81/stellar-offline-player/internal/transport/socketio"
	"github.com/edumarques81/stellar-offline-player/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the player and its control surface",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", version.GetInfo().String())
	log.Info().Msg("  Offline-capable media player")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Int("port", cfg.Server.Port).
		Str("api", cfg.Remote.APIBase).
		Str("cache", cfg.CacheName()).
		Str("db", cfg.DBPath()).
		Str("mpd_host", cfg.MPD.Host).
		Int("mpd_port", cfg.MPD.Port).
		Bool("password_set", cfg.MPD.Password != "").
		Msg("Configuration")

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var wg sync.WaitGroup
	background := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	background(func() { st.kv.Start(ctx) })

	// Offline layer: every request to the service goes through the worker's interceptor.
	worker := st.newWorker(cfg)
	background(func() { worker.Start(ctx) })

	client := newRemoteClient(cfg, worker)

	// The probe bypasses the interceptor so a cached answer never hides an outage.
	probe := remote.NewClient(remote.WithBaseURL(cfg.Remote.APIBase), remote.WithSearchRateLimit(0))
	monitor := connectivity.NewMonitor(func(ctx context.Context) error {
		_, err := probe.Health(ctx)
		return err
	}, connectivity.WithInterval(cfg.Offline.HealthInterval.Duration))
	monitor.Subscribe(func(online bool) {
		if online {
			worker.Post(offline.MsgOnline)
		} else {
			worker.Post(offline.MsgOffline)
		}
	})
	background(func() { monitor.Run(ctx) })

	background(func() { syncLibrary(ctx, client, st) })

	mpdClient := mpd.NewClient(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
	if err := mpdClient.Connect(); err != nil {
		stop()
		wg.Wait()
		return err
	}
	defer mpdClient.Close()
	log.Info().Msg("MPD connection verified")

	transport := mpd.NewTransport(mpdClient)
	background(func() { transport.Run(ctx) })

	session := player.NewSession(transport,
		player.WithPreferences(st.settings.Load()),
		player.WithHistory(st.history),
		player.WithSettings(st.settings),
	)
	background(func() { session.Run(ctx) })

	socketServer, err := socketio.NewServer(socketio.Deps{
		Session:  session,
		Resolver: client,
		Search:   client,
		History:  st.history,
		Library:  st.library,
		Worker:   worker,
	}, socketio.WithCORSOrigin(cfg.Server.CORSOrigin))
	if err != nil {
		stop()
		wg.Wait()
		return fmt.Errorf("create socket.io server: %w", err)
	}
	defer socketServer.Close()

	status := func() healthStatus {
		online, known := monitor.Online()
		h := healthStatus{
			Status:    "ok",
			MPD:       "connected",
			Offline:   string(worker.Lifecycle()),
			APIOnline: online && known,
		}
		if err := mpdClient.Ping(); err != nil {
			h.Status = "error"
			h.MPD = "disconnected"
		}
		return h
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      corsMiddleware(cfg.Server.CORSOrigin, newMux(socketServer, cfg.Server.StaticDir, status)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	wg.Wait()
	log.Info().Msg("Server stopped")
	return nil
}

// syncLibrary replaces the local library with the service's list when
// the service is reachable. Offline, the persisted library is kept.
func syncLibrary(ctx context.Context, client *remote.Client, st *stores) {
	tracks, err := client.Library(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Library sync skipped")
		return
	}
	st.library.Replace(tracks)
	log.Info().Int("songs", len(tracks)).Msg("Library synced")
}

