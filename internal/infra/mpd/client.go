// Package mpd drives a Music Player Daemon as the playback transport.
package mpd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by Ping before Connect.
var ErrNotConnected = errors.New("not connected")

// Client wraps the MPD client with reconnection logic.
type Client struct {
	mu       sync.RWMutex
	client   *mpd.Client
	watcher  *mpd.Watcher
	host     string
	port     int
	password string
}

// NewClient creates a new MPD client wrapper.
func NewClient(host string, port int, password string) *Client {
	return &Client{
		host:     host,
		port:     port,
		password: password,
	}
}

func (c *Client) addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// Connect establishes connection to MPD.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

// connectLocked establishes connection (must hold lock).
func (c *Client) connectLocked() error {
	log.Info().Str("addr", c.addr()).Msg("Connecting to MPD")

	client, err := mpd.Dial("tcp", c.addr())
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	if c.password != "" {
		if err := client.Command("password %s", c.password).OK(); err != nil {
			client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	c.client = client
	log.Info().Msg("Connected to MPD")
	return nil
}

// ensureConnected checks connection and reconnects if needed.
func (c *Client) ensureConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return c.connectLocked()
	}

	if err := c.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting...")
		c.client.Close()
		c.client = nil
		return c.connectLocked()
	}

	return nil
}

// do runs fn against a live connection.
func (c *Client) do(fn func(*mpd.Client) error) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return fn(c.client)
}

// Close closes the MPD connection and any watcher.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher != nil {
		c.watcher.Close()
		c.watcher = nil
	}

	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// Ping checks if the connection is alive.
func (c *Client) Ping() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return ErrNotConnected
	}
	return c.client.Ping()
}

// Status returns the current MPD status.
func (c *Client) Status() (mpd.Attrs, error) {
	var attrs mpd.Attrs
	err := c.do(func(m *mpd.Client) error {
		var err error
		attrs, err = m.Status()
		return err
	})
	return attrs, err
}

// Load replaces the queue with uri in a single command list, leaving MPD
// stopped at position 0.
func (c *Client) Load(uri string) error {
	return c.do(func(m *mpd.Client) error {
		cl := m.BeginCommandList()
		cl.Clear()
		cl.Add(uri)
		return cl.End()
	})
}

// Play starts playback at pos. A negative pos resumes the current song.
func (c *Client) Play(pos int) error {
	if pos < 0 {
		pos = -1
	}
	return c.do(func(m *mpd.Client) error { return m.Play(pos) })
}

// Pause sets the pause state.
func (c *Client) Pause(pause bool) error {
	return c.do(func(m *mpd.Client) error { return m.Pause(pause) })
}

// Stop stops playback.
func (c *Client) Stop() error {
	return c.do(func(m *mpd.Client) error { return m.Stop() })
}

// SeekCur seeks within the current song to an absolute position.
func (c *Client) SeekCur(seconds float64) error {
	d := time.Duration(seconds * float64(time.Second))
	return c.do(func(m *mpd.Client) error { return m.SeekCur(d, false) })
}

// SetVolume sets the volume (0-100).
func (c *Client) SetVolume(vol int) error {
	if vol < 0 {
		vol = 0
	} else if vol > 100 {
		vol = 100
	}
	return c.do(func(m *mpd.Client) error { return m.SetVolume(vol) })
}

// ClearError clears the error attribute reported in status.
func (c *Client) ClearError() error {
	return c.do(func(m *mpd.Client) error {
		return m.Command("clearerror").OK()
	})
}

// closeWatcher closes w unless Close already did.
func (c *Client) closeWatcher(w *mpd.Watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher == w {
		w.Close()
		c.watcher = nil
	}
}

// Watch reports changed MPD subsystems until ctx is done.
func (c *Client) Watch(ctx context.Context, subsystems ...string) (<-chan string, error) {
	watcher, err := mpd.NewWatcher("tcp", c.addr(), c.password, subsystems...)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	c.mu.Lock()
	c.watcher = watcher
	c.mu.Unlock()

	ch := make(chan string, 10)

	go func() {
		defer close(ch)
		defer c.closeWatcher(watcher)
		for {
			select {
			case <-ctx.Done():
				return
			case subsystem, ok := <-watcher.Event:
				if !ok {
					return
				}
				select {
				case ch <- subsystem:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Error:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("MPD watcher error")
			}
		}
	}()

	return ch, nil
}
