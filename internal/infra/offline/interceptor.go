// Package offline runs the background fetch layer: a cache-first
// interceptor for outbound requests, the install/activate lifecycle of
// versioned caches and the replay of queued mutations.
package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/edumarques81/stellar-offline-player/internal/apperr"
	"github.com/edumarques81/stellar-offline-player/internal/infra/cache"
	"github.com/rs/zerolog/log"
)

// ErrQueued is returned for a mutation that could not reach the network
// and was stored for replay.
var ErrQueued = errors.New("request queued for retry")

// CacheHeader is set on responses served from the store.
const CacheHeader = "X-Offline-Cache"

// ResponseStore holds cached responses.
type ResponseStore interface {
	Match(key string) (*cache.Entry, error)
	Put(e *cache.Entry) error
}

// RetryStore holds mutations waiting for connectivity.
type RetryStore interface {
	Enqueue(e *cache.RetryEntry) error
	Pending() ([]*cache.RetryEntry, error)
	MarkAttempt(id string, cause error) error
	Remove(id string) error
}

// Interceptor is an http.RoundTripper deciding per request between the
// response store and the network.
type Interceptor struct {
	next    http.RoundTripper
	retries RetryStore
	exclude []string
	origin  *url.URL
	rootKey string

	mu    sync.RWMutex
	store ResponseStore
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithNext sets the network transport. Defaults to http.DefaultTransport.
func WithNext(rt http.RoundTripper) InterceptorOption {
	return func(i *Interceptor) { i.next = rt }
}

// WithExcludePatterns sets substrings of URLs that always go to the network.
func WithExcludePatterns(patterns ...string) InterceptorOption {
	return func(i *Interceptor) {
		for _, p := range patterns {
			if p != "" {
				i.exclude = append(i.exclude, p)
			}
		}
	}
}

// WithAppOrigin restricts storing to responses from origin and sets the
// root document used as the navigation fallback.
func WithAppOrigin(origin, rootPath string) InterceptorOption {
	return func(i *Interceptor) {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			log.Warn().Str("origin", origin).Msg("Ignoring invalid app origin")
			return
		}
		i.origin = u
		if rootPath == "" {
			rootPath = "/index.html"
		}
		i.rootKey = cache.Key(http.MethodGet, u.ResolveReference(&url.URL{Path: rootPath}).String())
	}
}

// NewInterceptor creates an interceptor queueing failed mutations in retries.
func NewInterceptor(retries RetryStore, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		next:    http.DefaultTransport,
		retries: retries,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SetStore switches the response store, e.g. when a new cache version
// is activated. A nil store sends everything to the network.
func (i *Interceptor) SetStore(s ResponseStore) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.store = s
}

func (i *Interceptor) currentStore() ResponseStore {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.store
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if isMutation(req.Method) {
		return i.mutate(req)
	}
	if i.excluded(req.URL.String()) {
		return i.next.RoundTrip(req)
	}

	store := i.currentStore()
	key := cache.Key(req.Method, req.URL.String())

	if store != nil {
		if entry, err := store.Match(key); err == nil {
			log.Debug().Str("key", key).Msg("Serving from cache")
			return entryResponse(entry, req), nil
		} else if !errors.Is(err, cache.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("Cache lookup failed")
		}
	}

	resp, err := i.next.RoundTrip(req)
	if err != nil {
		if store != nil && i.rootKey != "" && isNavigation(req) {
			if entry, mErr := store.Match(i.rootKey); mErr == nil {
				log.Info().Str("url", req.URL.String()).Msg("Offline, serving root document")
				return entryResponse(entry, req), nil
			}
		}
		return nil, err
	}

	if store != nil && i.cacheable(req, resp) {
		if err := i.storeResponse(store, key, req, resp); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
		}
	}
	return resp, nil
}

// mutate forwards a mutation and queues it when the network is unreachable.
func (i *Interceptor) mutate(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = b
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	if len(body) == 0 {
		out.Body = http.NoBody
	}

	resp, err := i.next.RoundTrip(out)
	if err == nil {
		return resp, nil
	}
	if ctxErr := req.Context().Err(); ctxErr != nil {
		return nil, err
	}
	if i.retries == nil {
		return nil, apperr.New(apperr.KindConnectivity, req.Method+" "+req.URL.Path, err)
	}

	entry := &cache.RetryEntry{
		Method:    req.Method,
		URL:       req.URL.String(),
		Header:    req.Header.Clone(),
		Body:      body,
		LastError: err.Error(),
	}
	if qErr := i.retries.Enqueue(entry); qErr != nil {
		log.Error().Err(qErr).Str("url", entry.URL).Msg("Failed to queue request for retry")
		return nil, apperr.New(apperr.KindConnectivity, req.Method+" "+req.URL.Path, errors.Join(err, qErr))
	}

	log.Info().
		Str("id", entry.ID).
		Str("method", entry.Method).
		Str("url", entry.URL).
		Msg("Network unreachable, request queued for retry")
	return nil, apperr.WithSubject(apperr.KindConnectivity, req.Method+" "+req.URL.Path, entry.ID, fmt.Errorf("%w: %v", ErrQueued, err))
}

func (i *Interceptor) excluded(rawURL string) bool {
	for _, p := range i.exclude {
		if strings.Contains(rawURL, p) {
			return true
		}
	}
	return false
}

// cacheable reports whether resp is a successful same-origin response.
func (i *Interceptor) cacheable(req *http.Request, resp *http.Response) bool {
	if req.Method != http.MethodGet || resp.StatusCode != http.StatusOK {
		return false
	}
	if strings.Contains(resp.Header.Get("Cache-Control"), "no-store") {
		return false
	}
	if i.origin == nil {
		return true
	}
	return req.URL.Scheme == i.origin.Scheme && req.URL.Host == i.origin.Host
}

func (i *Interceptor) storeResponse(store ResponseStore, key string, req *http.Request, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	return store.Put(&cache.Entry{
		Key:    key,
		Method: req.Method,
		URL:    req.URL.String(),
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	})
}

func entryResponse(e *cache.Entry, req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(CacheHeader, "hit")

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func isMutation(method string) bool {
	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Dest") == "document" || req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// replay sends e directly to the network and returns the response body.
func replay(ctx context.Context, rt http.RoundTripper, e *cache.RetryEntry) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, e.Method, e.URL, bytes.NewReader(e.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range e.Header {
		req.Header[k] = append([]string(nil), v...)
	}

	resp, err := rt.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("replay status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// The server accepted the request; only its answer is lost.
		log.Warn().Err(err).Str("id", e.ID).Msg("Failed to read replay response")
	}
	return body, nil
}
