package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-offline-player/internal/apperr"
	"github.com/edumarques81/stellar-offline-player/internal/domain/player"
	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
	"github.com/edumarques81/stellar-offline-player/internal/infra/offline"
	"github.com/edumarques81/stellar-offline-player/internal/infra/remote"
)

var (
	errBadArgs         = errors.New("invalid arguments")
	errUnavailable     = errors.New("not available")
	errAlreadyReported = errors.New("already reported")
)

// reply is an event sent back to the calling client only.
type reply struct {
	event string
	data  any
}

type intent struct {
	handle func(ctx context.Context, args []any) (*reply, error)
	async  bool // blocks on the network
}

// failure is the pushFailure payload.
type failure struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func newFailure(err error) failure {
	kind := string(apperr.KindOf(err))
	if kind == "" {
		kind = "request"
	}
	return failure{
		Kind:       kind,
		Message:    err.Error(),
		Suggestion: apperr.Suggestion(err),
	}
}

type queuePayload struct {
	Queue    []track.Track `json:"queue"`
	Position int           `json:"position"`
}

func (s *Server) queuePayload() queuePayload {
	snap := s.deps.Session.Snapshot()
	return queuePayload{Queue: snap.Queue, Position: snap.Cursor}
}

type searchPayload struct {
	Query   string             `json:"query"`
	Results []remote.SearchHit `json:"results"`
}

// sessionErr hides errors the session already delivered to its failure
// listeners, so the caller is not told twice.
func sessionErr(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != "" {
		return fmt.Errorf("%w: %v", errAlreadyReported, err)
	}
	return err
}

// intents maps event names to handlers.
func (s *Server) intents() map[string]intent {
	sess := s.deps.Session

	simple := func(fn func() error) intent {
		return intent{handle: func(context.Context, []any) (*reply, error) {
			return nil, sessionErr(fn())
		}}
	}

	return map[string]intent{
		"getState": {handle: func(context.Context, []any) (*reply, error) {
			return &reply{"pushState", sess.Snapshot()}, nil
		}},
		"getQueue": {handle: func(context.Context, []any) (*reply, error) {
			return &reply{"pushQueue", s.queuePayload()}, nil
		}},
		"getHistory": {handle: func(context.Context, []any) (*reply, error) {
			if s.deps.History == nil {
				return &reply{"pushHistory", []track.Track{}}, nil
			}
			return &reply{"pushHistory", s.deps.History.List()}, nil
		}},
		"getLibrary": {handle: func(context.Context, []any) (*reply, error) {
			if s.deps.Library == nil {
				return &reply{"pushLibrary", []track.Track{}}, nil
			}
			return &reply{"pushLibrary", s.deps.Library.List()}, nil
		}},

		"playTrack": {handle: func(_ context.Context, args []any) (*reply, error) {
			var t track.Track
			if err := decodeArg(args, &t); err != nil {
				return nil, err
			}
			return nil, sessionErr(sess.PlayTrack(t))
		}},
		"playLibrary": {handle: func(_ context.Context, args []any) (*reply, error) {
			if s.deps.Library == nil {
				return nil, fmt.Errorf("library: %w", errUnavailable)
			}
			id, ok := argString(args, "id")
			if !ok {
				return nil, errBadArgs
			}
			return nil, sessionErr(sess.PlayFromLibrary(s.deps.Library.List(), id))
		}},
		"playSearchResult": {async: true, handle: func(ctx context.Context, args []any) (*reply, error) {
			if s.deps.Resolver == nil {
				return nil, fmt.Errorf("resolver: %w", errUnavailable)
			}
			var hit remote.SearchHit
			if err := decodeArg(args, &hit); err != nil {
				return nil, err
			}
			if hit.ID == "" {
				return nil, errBadArgs
			}
			err := sess.ResolveAndPlay(ctx, s.deps.Resolver, hit.Track())
			if errors.Is(err, player.ErrSuperseded) {
				log.Debug().Str("id", hit.ID).Msg("Search result superseded")
				return nil, nil
			}
			return nil, sessionErr(err)
		}},

		"toggle": simple(sess.TogglePlayPause),
		"next":   simple(sess.Next),
		"prev":   simple(sess.Previous),
		"stop":   simple(sess.Stop),
		"mute":   simple(sess.ToggleMute),
		"cycleRepeat": {handle: func(context.Context, []any) (*reply, error) {
			_, err := sess.CycleRepeat()
			return nil, sessionErr(err)
		}},

		"seek": {handle: func(_ context.Context, args []any) (*reply, error) {
			f, ok := argFloat(args, "value")
			if !ok {
				return nil, errBadArgs
			}
			return nil, sessionErr(sess.Seek(f))
		}},
		"seekBy": {handle: func(_ context.Context, args []any) (*reply, error) {
			d, ok := argFloat(args, "value")
			if !ok {
				return nil, errBadArgs
			}
			return nil, sessionErr(sess.SeekBy(d))
		}},
		"volume": {handle: func(_ context.Context, args []any) (*reply, error) {
			v, ok := argFloat(args, "value")
			if !ok {
				return nil, errBadArgs
			}
			return nil, sessionErr(sess.SetVolume(v))
		}},
		"nudgeVolume": {handle: func(_ context.Context, args []any) (*reply, error) {
			d, ok := argFloat(args, "value")
			if !ok {
				return nil, errBadArgs
			}
			return nil, sessionErr(sess.NudgeVolume(d))
		}},
		"setShuffle": {handle: func(_ context.Context, args []any) (*reply, error) {
			on, ok := argBool(args, "value")
			if !ok {
				return nil, errBadArgs
			}
			return nil, sessionErr(sess.SetShuffle(on))
		}},
		"jumpTo": {handle: func(_ context.Context, args []any) (*reply, error) {
			i, ok := argIndex(args, "index")
			if !ok {
				return nil, errBadArgs
			}
			return nil, sessionErr(sess.JumpTo(i))
		}},

		"search": {async: true, handle: func(ctx context.Context, args []any) (*reply, error) {
			if s.deps.Search == nil {
				return nil, fmt.Errorf("search: %w", errUnavailable)
			}
			q, ok := argString(args, "query")
			if !ok {
				return nil, errBadArgs
			}
			hits, err := s.deps.Search.Search(ctx, q)
			if err != nil {
				return nil, err
			}
			if hits == nil {
				hits = []remote.SearchHit{}
			}
			return &reply{"pushSearchResults", searchPayload{Query: q, Results: hits}}, nil
		}},

		"skipWaiting": {handle: func(context.Context, []any) (*reply, error) {
			if s.deps.Worker == nil {
				return nil, fmt.Errorf("offline worker: %w", errUnavailable)
			}
			s.deps.Worker.Post(offline.MsgSkipWaiting)
			return nil, nil
		}},
		"sync": {handle: func(context.Context, []any) (*reply, error) {
			if s.deps.Worker == nil {
				return nil, fmt.Errorf("offline worker: %w", errUnavailable)
			}
			s.deps.Worker.Post(offline.MsgSync)
			return nil, nil
		}},
	}
}

// argMap returns the first argument as an object, if it is one.
func argMap(args []any) (map[string]any, bool) {
	if len(args) == 0 {
		return nil, false
	}
	m, ok := args[0].(map[string]any)
	return m, ok
}

// argFloat accepts either a bare number or {key: number}.
func argFloat(args []any, key string) (float64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	if v, ok := args[0].(float64); ok {
		return v, true
	}
	if m, ok := argMap(args); ok {
		v, ok := m[key].(float64)
		return v, ok
	}
	return 0, false
}

// argIndex is argFloat restricted to whole numbers.
func argIndex(args []any, key string) (int, bool) {
	v, ok := argFloat(args, key)
	if !ok || v != math.Trunc(v) {
		return 0, false
	}
	return int(v), true
}

// argBool accepts either a bare bool or {key: bool}.
func argBool(args []any, key string) (bool, bool) {
	if len(args) == 0 {
		return false, false
	}
	if v, ok := args[0].(bool); ok {
		return v, true
	}
	if m, ok := argMap(args); ok {
		v, ok := m[key].(bool)
		return v, ok
	}
	return false, false
}

// argString accepts either a bare string or {key: string}.
func argString(args []any, key string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	if v, ok := args[0].(string); ok {
		return v, v != ""
	}
	if m, ok := argMap(args); ok {
		v, ok := m[key].(string)
		return v, ok && v != ""
	}
	return "", false
}

// decodeArg re-encodes the first argument into dst.
func decodeArg(args []any, dst any) error {
	if len(args) == 0 {
		return errBadArgs
	}
	data, err := json.Marshal(args[0])
	if err != nil {
		return fmt.Errorf("%w: %v", errBadArgs, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadArgs, err)
	}
	return nil
}
