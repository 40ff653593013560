package kv

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultFlushInterval is how often pending writes reach the backend.
const DefaultFlushInterval = 5 * time.Second

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Persister is a write-behind Store. Writes land in memory immediately and
// reach the backend on the periodic flush or an explicit Flush, so callers
// on the playback path never wait on disk I/O.
type Persister struct {
	backend  Store
	interval time.Duration

	mu      sync.Mutex
	pending map[string]pendingWrite
	running bool
	stopCh  chan struct{}
}

// PersisterOption is a functional option for configuring the persister.
type PersisterOption func(*Persister)

// WithFlushInterval sets the interval between background flushes.
func WithFlushInterval(interval time.Duration) PersisterOption {
	return func(p *Persister) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// NewPersister wraps backend with write-behind buffering.
func NewPersister(backend Store, opts ...PersisterOption) *Persister {
	p := &Persister{
		backend:  backend,
		interval: DefaultFlushInterval,
		pending:  make(map[string]pendingWrite),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the newest value for key, pending or flushed.
func (p *Persister) Get(key string) ([]byte, error) {
	p.mu.Lock()
	w, ok := p.pending[key]
	p.mu.Unlock()

	if ok {
		if w.deleted {
			return nil, ErrNotFound
		}
		out := make([]byte, len(w.value))
		copy(out, w.value)
		return out, nil
	}
	return p.backend.Get(key)
}

// Put buffers value for key. It never blocks on the backend.
func (p *Persister) Put(key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	p.mu.Lock()
	p.pending[key] = pendingWrite{value: v}
	p.mu.Unlock()
	return nil
}

// Delete buffers removal of key.
func (p *Persister) Delete(key string) error {
	p.mu.Lock()
	p.pending[key] = pendingWrite{deleted: true}
	p.mu.Unlock()
	return nil
}

// Pending returns the number of keys waiting to be flushed.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Flush writes all pending keys to the backend. Keys that fail stay pending
// for the next flush unless a newer write replaced them meanwhile.
func (p *Persister) Flush() error {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[string]pendingWrite)
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var errs []error
	for key, w := range batch {
		var err error
		if w.deleted {
			err = p.backend.Delete(key)
		} else {
			err = p.backend.Put(key, w.value)
		}
		if err == nil {
			continue
		}

		errs = append(errs, err)
		p.mu.Lock()
		if _, newer := p.pending[key]; !newer {
			p.pending[key] = w
		}
		p.mu.Unlock()
	}

	if len(errs) > 0 {
		log.Warn().Int("failed", len(errs)).Int("total", len(batch)).Msg("Flush left keys pending")
		return errors.Join(errs...)
	}

	log.Debug().Int("keys", len(batch)).Msg("Flushed persisted state")
	return nil
}

// Start flushes periodically until ctx is cancelled or Stop is called,
// then performs a final flush.
func (p *Persister) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	defer func() {
		if err := p.Flush(); err != nil {
			log.Error().Err(err).Msg("Final flush failed")
		}
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.Flush()
		}
	}
}

// Stop ends the flush loop started by Start.
func (p *Persister) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		close(p.stopCh)
		p.running = false
	}
}
