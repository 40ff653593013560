package offline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/edumarques81/stellar-offline-player/internal/infra/cache"
	"github.com/rs/zerolog/log"
)

// Message is sent from the foreground to the worker.
type Message int

const (
	// MsgSkipWaiting activates an installed version immediately.
	MsgSkipWaiting Message = iota
	// MsgSync drains the retry queue.
	MsgSync
	// MsgOnline reports restored connectivity and drains the retry queue.
	MsgOnline
	// MsgOffline reports lost connectivity.
	MsgOffline
)

func (m Message) String() string {
	switch m {
	case MsgSkipWaiting:
		return "skip_waiting"
	case MsgSync:
		return "sync"
	case MsgOnline:
		return "online"
	case MsgOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Lifecycle of the worker's cache version.
type Lifecycle string

const (
	LifecycleIdle       Lifecycle = "idle"
	LifecycleInstalling Lifecycle = "installing"
	LifecycleWaiting    Lifecycle = "waiting"
	LifecycleActive     Lifecycle = "active"
)

// Store is the cache database used by the worker.
type Store interface {
	Cache(name string, capacity int) *cache.Cache
	Activate(name string) (int64, error)
	ActiveCache() (string, error)
	RetryQueue() *cache.RetryQueue
}

// WorkerConfig holds worker settings.
type WorkerConfig struct {
	CacheName     string
	Capacity      int
	Precache      []string // paths or absolute URLs
	AppOrigin     string
	RootDocument  string
	Exclude       []string
	DrainInterval time.Duration // 0 disables periodic drains
	SkipWaiting   bool
}

// DrainResult summarises one pass over the retry queue.
type DrainResult struct {
	Replayed  int  `json:"replayed"`
	Failed    int  `json:"failed"`
	Remaining int  `json:"remaining"`
	Skipped   bool `json:"skipped"` // another drain was already running
}

// Worker is the background execution context owning the caches. It talks
// to the foreground only through Post and the interceptor it exposes.
type Worker struct {
	store       Store
	retries     RetryStore
	network     http.RoundTripper
	interceptor *Interceptor
	config      WorkerConfig

	onReplay ReplayListener

	msgs    chan Message
	drainMu sync.Mutex

	mu        sync.Mutex
	lifecycle Lifecycle
	online    bool
	running   bool
	stopCh    chan struct{}
}

// WorkerOption is a functional option for configuring the worker.
type WorkerOption func(*Worker)

// WithNetwork sets the transport used for precaching, fetching and replay.
func WithNetwork(rt http.RoundTripper) WorkerOption {
	return func(w *Worker) {
		if rt != nil {
			w.network = rt
		}
	}
}

// ReplayListener is told about every queued request that was replayed
// successfully, with the body the server answered.
type ReplayListener func(e *cache.RetryEntry, body []byte)

// WithReplayListener sets the callback run after each successful replay.
func WithReplayListener(fn ReplayListener) WorkerOption {
	return func(w *Worker) { w.onReplay = fn }
}

// WithRetryStore overrides the retry store taken from the database.
func WithRetryStore(r RetryStore) WorkerOption {
	return func(w *Worker) { w.retries = r }
}

// NewWorker creates a worker for store.
func NewWorker(store Store, cfg WorkerConfig, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:     store,
		network:   http.DefaultTransport,
		config:    cfg,
		msgs:      make(chan Message, 16),
		lifecycle: LifecycleIdle,
		online:    true,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.retries == nil {
		w.retries = store.RetryQueue()
	}

	w.interceptor = NewInterceptor(w.retries,
		WithNext(w.network),
		WithExcludePatterns(cfg.Exclude...),
		WithAppOrigin(cfg.AppOrigin, cfg.RootDocument),
	)
	return w
}

// Transport returns the interceptor for use in an http.Client.
func (w *Worker) Transport() http.RoundTripper {
	return w.interceptor
}

// Lifecycle returns the current lifecycle state.
func (w *Worker) Lifecycle() Lifecycle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lifecycle
}

// Online reports the last connectivity state received.
func (w *Worker) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Post sends msg to the worker without blocking.
func (w *Worker) Post(msg Message) {
	select {
	case w.msgs <- msg:
	default:
		log.Warn().Str("message", msg.String()).Msg("Offline worker busy, message dropped")
	}
}

// Install precaches the configured resources into the worker's cache
// version, then activates it when no other version is active. Otherwise
// the version waits for MsgSkipWaiting. Precache failures are logged.
func (w *Worker) Install(ctx context.Context) error {
	w.setLifecycle(LifecycleInstalling)
	log.Info().Str("cache", w.config.CacheName).Msg("Offline worker installing")

	next := w.store.Cache(w.config.CacheName, w.config.Capacity)
	stored := 0
	for _, res := range w.config.Precache {
		if err := w.precache(ctx, next, res); err != nil {
			log.Error().Err(err).Str("resource", res).Msg("Failed to precache resource")
			continue
		}
		stored++
	}
	log.Info().Int("stored", stored).Int("total", len(w.config.Precache)).Msg("Precached app shell")

	prev, err := w.store.ActiveCache()
	if err != nil {
		return err
	}
	if prev == "" || prev == w.config.CacheName || w.config.SkipWaiting {
		return w.Activate()
	}

	w.interceptor.SetStore(w.store.Cache(prev, w.config.Capacity))
	w.setLifecycle(LifecycleWaiting)
	log.Info().Str("active", prev).Str("waiting", w.config.CacheName).Msg("New cache version waiting")
	return nil
}

// Activate makes the worker's version active and removes all others.
func (w *Worker) Activate() error {
	if _, err := w.store.Activate(w.config.CacheName); err != nil {
		return err
	}
	w.interceptor.SetStore(w.store.Cache(w.config.CacheName, w.config.Capacity))
	w.setLifecycle(LifecycleActive)
	return nil
}

func (w *Worker) precache(ctx context.Context, c *cache.Cache, resource string) error {
	target := resource
	if w.config.AppOrigin != "" {
		base, err := url.Parse(w.config.AppOrigin)
		if err == nil {
			ref, err := url.Parse(resource)
			if err != nil {
				return err
			}
			target = base.ResolveReference(ref).String()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := w.network.RoundTrip(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return errors.New("precache status " + resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	return c.Put(&cache.Entry{
		Key:    cache.Key(http.MethodGet, target),
		Method: http.MethodGet,
		URL:    target,
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	})
}

// Drain replays queued mutations in FIFO order. Successful replays are
// removed; failures stay queued with their attempt count increased.
// Concurrent calls coalesce into the one already running.
func (w *Worker) Drain(ctx context.Context) (DrainResult, error) {
	if !w.drainMu.TryLock() {
		log.Debug().Msg("Drain already running")
		return DrainResult{Skipped: true}, nil
	}
	defer w.drainMu.Unlock()

	pending, err := w.retries.Pending()
	if err != nil {
		return DrainResult{}, err
	}
	if len(pending) == 0 {
		return DrainResult{}, nil
	}

	log.Debug().Int("count", len(pending)).Msg("Draining retry queue")

	var result DrainResult
	for _, e := range pending {
		if ctx.Err() != nil {
			break
		}
		body, err := replay(ctx, w.network, e)
		if err != nil {
			result.Failed++
			log.Warn().
				Err(err).
				Str("id", e.ID).
				Str("url", e.URL).
				Int("attempts", e.Attempts+1).
				Msg("Retry replay failed")
			if mErr := w.retries.MarkAttempt(e.ID, err); mErr != nil {
				log.Error().Err(mErr).Str("id", e.ID).Msg("Failed to record retry attempt")
			}
			continue
		}
		if err := w.retries.Remove(e.ID); err != nil {
			log.Error().Err(err).Str("id", e.ID).Msg("Failed to remove replayed request")
			continue
		}
		result.Replayed++
		log.Info().Str("id", e.ID).Str("url", e.URL).Msg("Replayed queued request")
		if w.onReplay != nil {
			w.onReplay(e, body)
		}
	}

	result.Remaining = len(pending) - result.Replayed
	return result, nil
}

// Start installs the cache version and processes messages until ctx is
// cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.Install(ctx); err != nil {
		log.Error().Err(err).Msg("Offline worker install failed")
	}

	var tick <-chan time.Time
	if w.config.DrainInterval > 0 {
		ticker := time.NewTicker(w.config.DrainInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	log.Info().
		Str("cache", w.config.CacheName).
		Dur("drainInterval", w.config.DrainInterval).
		Msg("Offline worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Offline worker stopping (context cancelled)")
			return
		case <-stopCh:
			log.Info().Msg("Offline worker stopping (stop requested)")
			return
		case msg := <-w.msgs:
			w.handle(ctx, msg)
		case <-tick:
			if w.Online() {
				w.drain(ctx)
			}
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

func (w *Worker) handle(ctx context.Context, msg Message) {
	log.Debug().Str("message", msg.String()).Msg("Offline worker message")

	switch msg {
	case MsgSkipWaiting:
		if w.Lifecycle() == LifecycleWaiting {
			if err := w.Activate(); err != nil {
				log.Error().Err(err).Msg("Failed to activate waiting cache")
			}
		}
	case MsgOnline:
		w.setOnline(true)
		w.drain(ctx)
	case MsgOffline:
		w.setOnline(false)
	case MsgSync:
		w.drain(ctx)
	}
}

func (w *Worker) drain(ctx context.Context) {
	res, err := w.Drain(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Retry drain failed")
		return
	}
	if res.Replayed > 0 || res.Failed > 0 {
		log.Info().
			Int("replayed", res.Replayed).
			Int("failed", res.Failed).
			Int("remaining", res.Remaining).
			Msg("Retry drain finished")
	}
}

func (w *Worker) setLifecycle(l Lifecycle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lifecycle = l
}

func (w *Worker) setOnline(online bool) {
	w.mu.Lock()
	changed := w.online != online
	w.online = online
	w.mu.Unlock()

	if changed {
		log.Info().Bool("online", online).Msg("Connectivity changed")
	}
}
