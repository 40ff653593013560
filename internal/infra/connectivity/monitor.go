// Package connectivity watches reachability of the media service.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval between health probes.
const DefaultInterval = 15 * time.Second

// ProbeFunc reports whether the service is reachable. A nil error means online.
type ProbeFunc func(ctx context.Context) error

// Listener receives online/offline transitions.
type Listener func(online bool)

// Monitor probes the service on a ticker and notifies listeners when the
// reachability changes. The first probe result is always delivered.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	known     bool
	online    bool
	listeners []Listener
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the probe interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithTimeout bounds a single probe.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewMonitor creates a monitor for probe.
func NewMonitor(probe ProbeFunc, opts ...Option) *Monitor {
	m := &Monitor{
		probe:    probe,
		interval: DefaultInterval,
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers l for future transitions.
func (m *Monitor) Subscribe(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Online returns the last observed state and whether any probe has completed.
func (m *Monitor) Online() (online, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online, m.known
}

// Check runs one probe and notifies listeners on a transition.
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.probe(pctx)
	cancel()
	online := err == nil

	m.mu.Lock()
	changed := !m.known || m.online != online
	m.known = true
	m.online = online
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if !changed {
		return online
	}

	if online {
		log.Info().Msg("Media service reachable")
	} else {
		log.Warn().Err(err).Msg("Media service unreachable")
	}
	for _, l := range listeners {
		l(online)
	}
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	log.Info().Dur("interval", m.interval).Msg("Connectivity monitor started")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Connectivity monitor stopped")
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
