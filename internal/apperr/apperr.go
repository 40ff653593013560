// Package apperr defines the failure taxonomy shared by the playback core.
// Every kind is recoverable: callers report the condition and keep running.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindTransport    Kind = "transport"
	KindResolution   Kind = "resolution"
	KindUpload       Kind = "upload"
	KindConnectivity Kind = "connectivity"
	KindPersistence  Kind = "persistence"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	// ErrTransport indicates a load, play or decoding failure in the media transport.
	ErrTransport = errors.New("transport failure")

	// ErrResolution indicates the remote lookup returned no usable stream.
	ErrResolution = errors.New("resolution failure")

	// ErrUpload indicates a non-success upload response or network failure.
	ErrUpload = errors.New("upload failure")

	// ErrConnectivity indicates the network was unreachable during a mutation.
	ErrConnectivity = errors.New("connectivity failure")

	// ErrPersistence indicates absent or malformed stored data.
	ErrPersistence = errors.New("persistence failure")
)

var sentinels = map[Kind]error{
	KindTransport:    ErrTransport,
	KindResolution:   ErrResolution,
	KindUpload:       ErrUpload,
	KindConnectivity: ErrConnectivity,
	KindPersistence:  ErrPersistence,
}

// Error wraps a cause with its kind, the operation that failed and an
// optional subject (track id, file name, storage key).
type Error struct {
	Kind    Kind
	Op      string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Subject != "" {
		msg += fmt.Sprintf(" (%s)", e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// New wraps err as a failure of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithSubject wraps err as a failure of the given kind about subject.
func WithSubject(kind Kind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	return ""
}

// IsRecoverable reports whether the failure leaves the process in a usable state.
// Nothing in the playback core is fatal.
func IsRecoverable(err error) bool {
	return true
}

// Suggestion returns a short user-facing hint for err.
func Suggestion(err error) string {
	switch KindOf(err) {
	case KindTransport:
		return "Try a different track"
	case KindResolution:
		return "Try searching for the song again"
	case KindUpload:
		return "Check the file type and try uploading again"
	case KindConnectivity:
		return "You appear to be offline; the request will be retried when the connection returns"
	case KindPersistence:
		return ""
	default:
		return ""
	}
}
