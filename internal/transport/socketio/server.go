// Package socketio is the control surface: UI intents come in as socket.io
// events and session state goes back out as pushes.
package socketio

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/stellar-offline-player/internal/domain/player"
	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
	"github.com/edumarques81/stellar-offline-player/internal/infra/offline"
	"github.com/edumarques81/stellar-offline-player/internal/infra/remote"
)

// DefaultDebounceWindow collapses bursts of state changes into one push.
const DefaultDebounceWindow = 50 * time.Millisecond

// Searcher queries the remote catalog.
type Searcher interface {
	Search(ctx context.Context, query string) ([]remote.SearchHit, error)
}

// TrackLister lists a persisted track collection.
type TrackLister interface {
	List() []track.Track
}

// Poster delivers a message to the offline worker.
type Poster interface {
	Post(msg offline.Message)
}

// Deps are the collaborators behind the control surface. Session is required.
type Deps struct {
	Session  *player.Session
	Resolver player.Resolver
	Search   Searcher
	History  TrackLister
	Library  TrackLister
	Worker   Poster
}

// Server handles Socket.io connections and events.
type Server struct {
	io        *socket.Server
	deps      Deps
	debouncer *BroadcastDebouncer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[string]*socket.Socket

	diff stateDiff
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	corsOrigin string
	window     time.Duration
}

// WithCORSOrigin restricts the origin allowed to connect.
func WithCORSOrigin(origin string) Option {
	return func(o *serverOptions) {
		if origin != "" {
			o.corsOrigin = origin
		}
	}
}

// WithDebounceWindow sets how long pushes are held back to merge bursts.
func WithDebounceWindow(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.window = d
		}
	}
}

// NewServer creates a new Socket.io server subscribed to deps.Session.
func NewServer(deps Deps, opts ...Option) (*Server, error) {
	if deps.Session == nil {
		return nil, errors.New("socketio: session is required")
	}

	o := serverOptions{corsOrigin: "*", window: DefaultDebounceWindow}
	for _, opt := range opts {
		opt(&o)
	}

	sopts := socket.DefaultServerOptions()
	sopts.SetPingTimeout(20 * time.Second)
	sopts.SetPingInterval(25 * time.Second)
	sopts.SetCors(&types.Cors{
		Origin:      o.corsOrigin,
		Credentials: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		io:      socket.NewServer(nil, sopts),
		deps:    deps,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*socket.Socket),
	}
	s.debouncer = NewBroadcastDebouncer(o.window, s.flush)

	deps.Session.Subscribe(s.onState, s.onFailure)
	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	intents := s.intents()

	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		log.Info().Str("id", clientID).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		go func() {
			time.Sleep(100 * time.Millisecond)
			client.Emit("pushState", s.deps.Session.Snapshot())
			client.Emit("pushQueue", s.queuePayload())
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		for name, in := range intents {
			name, in := name, in
			client.On(name, func(args ...any) {
				log.Debug().Str("id", clientID).Interface("data", args).Msg(name)
				if in.async {
					go s.run(client, name, in, args)
					return
				}
				s.run(client, name, in, args)
			})
		}
	})
}

// run executes one intent and answers the calling client.
func (s *Server) run(client *socket.Socket, name string, in intent, args []any) {
	r, err := in.handle(s.ctx, args)
	if err != nil {
		s.replyError(client, name, err)
		return
	}
	if r != nil {
		client.Emit(r.event, r.data)
	}
}

// BroadcastState sends state to all connected clients.
func (s *Server) BroadcastState() {
	snap := s.deps.Session.Snapshot()
	s.io.Emit("pushState", snap)

	s.mu.RLock()
	clientCount := len(s.clients)
	s.mu.RUnlock()
	log.Debug().Str("status", string(snap.Status)).Int("clients", clientCount).Msg("Broadcast state")
}

// BroadcastQueue sends the queue to all connected clients.
func (s *Server) BroadcastQueue() {
	s.io.Emit("pushQueue", s.queuePayload())
}

// BroadcastHistory sends play history to all connected clients.
func (s *Server) BroadcastHistory() {
	if s.deps.History == nil {
		return
	}
	s.io.Emit("pushHistory", s.deps.History.List())
}

func (s *Server) flush(c Change) {
	if c.Has(ChangeState) {
		s.BroadcastState()
	}
	if c.Has(ChangeQueue) {
		s.BroadcastQueue()
	}
	if c.Has(ChangeHistory) {
		s.BroadcastHistory()
	}
}

// onState is the session's state listener.
func (s *Server) onState(snap player.Snapshot) {
	s.debouncer.Trigger(s.diff.observe(snap))
}

// onFailure is the session's failure listener. Failures go to everyone.
func (s *Server) onFailure(err error) {
	s.io.Emit("pushFailure", newFailure(err))
}

func (s *Server) replyError(client *socket.Socket, name string, err error) {
	if errors.Is(err, errAlreadyReported) {
		return
	}
	log.Warn().Err(err).Str("intent", name).Msg("Intent failed")
	client.Emit("pushFailure", newFailure(err))
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close stops pushes and closes the Socket.io server.
func (s *Server) Close() error {
	s.cancel()
	s.debouncer.Stop()
	s.io.Close(nil)
	return nil
}
