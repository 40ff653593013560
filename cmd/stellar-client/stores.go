package main

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-offline-player/internal/config"
	"github.com/edumarques81/stellar-offline-player/internal/domain/history"
	"github.com/edumarques81/stellar-offline-player/internal/domain/library"
	"github.com/edumarques81/stellar-offline-player/internal/domain/settings"
	"github.com/edumarques81/stellar-offline-player/internal/infra/cache"
	"github.com/edumarques81/stellar-offline-player/internal/infra/kv"
	"github.com/edumarques81/stellar-offline-player/internal/infra/offline"
	"github.com/edumarques81/stellar-offline-player/internal/infra/remote"
)

// stores is the local persistence shared by every command: one SQLite file
// holding caches, retries and the session key-value data.
type stores struct {
	db       *cache.DB
	kv       *kv.Persister
	settings *settings.Store
	history  *history.History
	library  *library.Library
}

func openStores(cfg *config.Config) (*stores, error) {
	db := cache.NewDB(cfg.DBPath())
	if err := db.Open(); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	backend, err := kv.NewSQLiteStore(db.SQL())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open key-value store: %w", err)
	}
	persister := kv.NewPersister(backend, kv.WithFlushInterval(cfg.Store.FlushInterval.Duration))

	return &stores{
		db:       db,
		kv:       persister,
		settings: settings.NewStore(persister, cfg.Player.DefaultVolume),
		history:  history.New(persister, history.WithCapacity(cfg.Player.HistoryCapacity)),
		library:  library.New(persister),
	}, nil
}

// newWorker builds the offline worker from configuration. Uploads it
// replays are added to the library.
func (s *stores) newWorker(cfg *config.Config) *offline.Worker {
	return offline.NewWorker(s.db, offline.WorkerConfig{
		CacheName:     cfg.CacheName(),
		Capacity:      cfg.Offline.Capacity,
		Precache:      cfg.Offline.Precache,
		AppOrigin:     cfg.Offline.AppOrigin,
		RootDocument:  cfg.Offline.RootDocument,
		Exclude:       cfg.Offline.Exclude,
		DrainInterval: cfg.Offline.DrainInterval.Duration,
		SkipWaiting:   cfg.Offline.SkipWaiting,
	}, offline.WithReplayListener(s.library.ReplayListener(cfg.Remote.APIBase)))
}

// Close flushes pending writes and closes the database.
func (s *stores) Close() error {
	if err := s.kv.Flush(); err != nil {
		log.Error().Err(err).Msg("Failed to flush session data")
	}
	return s.db.Close()
}

// newRemoteClient builds a service client whose requests pass through the
// worker's interceptor.
func newRemoteClient(cfg *config.Config, worker *offline.Worker) *remote.Client {
	return remote.NewClient(
		remote.WithBaseURL(cfg.Remote.APIBase),
		remote.WithHTTPClient(&http.Client{Transport: worker.Transport(), Timeout: cfg.Remote.Timeout.Duration}),
		remote.WithSearchRateLimit(cfg.Remote.SearchRateLimit),
	)
}
