// Package remote is the client for the media service: catalog search,
// stream resolution, uploads and the uploaded-song library.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/edumarques81/stellar-offline-player/internal/apperr"
	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
	"github.com/edumarques81/stellar-offline-player/internal/version"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is where the media service listens by default.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// DefaultSearchRateLimit keeps type-ahead search from flooding the service.
	DefaultSearchRateLimit = 5
)

// ErrNoStream is returned when the service answers without a stream URL.
var ErrNoStream = errors.New("no stream url in response")

// DefaultUserAgent identifies the client to the service.
var DefaultUserAgent = version.Name + "/" + version.Version

// Client talks to the media service.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rateLimiter
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithBaseURL sets the service base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient sets a custom HTTP client, typically one whose transport
// is the offline interceptor.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithSearchRateLimit sets the search rate limit in requests per second.
// Zero disables limiting.
func WithSearchRateLimit(rps int) Option {
	return func(c *Client) {
		c.limiter = newRateLimiter(rps)
	}
}

// NewClient creates a new media service client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: newRateLimiter(DefaultSearchRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the configured service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SearchHit is one catalog search result.
type SearchHit struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Channel   string `json:"channel"`
	Duration  string `json:"duration"` // "m:ss" or "h:mm:ss"
	Thumbnail string `json:"thumbnail"`
	URL       string `json:"url"`
}

// Track returns the unresolved track for h. Its stream URL is set once
// the hit is resolved.
func (h SearchHit) Track() track.Track {
	return track.NewRemote(h.ID, h.Title, h.Channel, "", h.Thumbnail, ParseDuration(h.Duration))
}

type searchResponse struct {
	Results []SearchHit `json:"results"`
	Total   int         `json:"total"`
}

type playResponse struct {
	StreamURL   string   `json:"stream_url"`
	Title       string   `json:"title"`
	Duration    string   `json:"duration"`
	Error       string   `json:"error"`
	Detail      string   `json:"detail"`
	Suggestions []string `json:"suggestions"`
}

// UploadResult is the service's answer to a successful upload.
type UploadResult struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	Message      string `json:"message"`
}

// LibrarySong is one uploaded file known to the service.
type LibrarySong struct {
	ID           string  `json:"id"`
	Filename     string  `json:"filename"`
	OriginalName string  `json:"original_name"`
	Size         int64   `json:"size"`
	Modified     float64 `json:"modified"`
	URL          string  `json:"url"`
	Source       string  `json:"source"`
}

type libraryResponse struct {
	Songs []LibrarySong `json:"songs"`
	Total int           `json:"total"`
}

// Health is the service status.
type Health struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	YoutubeAvailable bool   `json:"youtube_available"`
	YtdlpAvailable   bool   `json:"ytdlp_available"`
}

// Search queries the catalog. No results is not an error.
func (c *Client) Search(ctx context.Context, query string) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	searchURL := fmt.Sprintf("%s/search?q=%s", c.baseURL, url.QueryEscape(query))
	log.Debug().Str("query", query).Msg("Searching catalog")

	var resp searchResponse
	if err := c.getJSON(ctx, searchURL, &resp); err != nil {
		return nil, apperr.WithSubject(apperr.KindResolution, "search", query, err)
	}

	hits := make([]SearchHit, 0, len(resp.Results))
	for _, h := range resp.Results {
		if h.ID != "" {
			hits = append(hits, h)
		}
	}
	return hits, nil
}

// Resolve returns the stream URL for a catalog id. It implements
// player.Resolver.
func (c *Client) Resolve(ctx context.Context, id string) (string, error) {
	playURL := fmt.Sprintf("%s/play/%s", c.baseURL, url.PathEscape(id))

	var resp playResponse
	if err := c.getJSON(ctx, playURL, &resp); err != nil {
		return "", apperr.WithSubject(apperr.KindResolution, "resolve", id, err)
	}

	if resp.StreamURL == "" {
		cause := ErrNoStream
		if resp.Error != "" {
			cause = fmt.Errorf("%w: %s: %s", ErrNoStream, resp.Error, resp.Detail)
		}
		log.Warn().
			Str("id", id).
			Str("error", resp.Error).
			Strs("suggestions", resp.Suggestions).
			Msg("Service could not resolve stream")
		return "", apperr.WithSubject(apperr.KindResolution, "resolve", id, cause)
	}

	return resp.StreamURL, nil
}

// Upload sends one file as multipart field "file". Any non-2xx status is
// an UploadError. A connectivity failure queued by the offline layer is
// returned as a ConnectivityError.
func (c *Client) Upload(ctx context.Context, name string, body io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, apperr.WithSubject(apperr.KindUpload, "upload", name, err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, apperr.WithSubject(apperr.KindUpload, "upload", name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, apperr.WithSubject(apperr.KindUpload, "upload", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return nil, apperr.WithSubject(apperr.KindUpload, "upload", name, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindConnectivity {
			return nil, err
		}
		return nil, apperr.WithSubject(apperr.KindUpload, "upload", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().Int("status", resp.StatusCode).Str("file", name).Msg("Upload rejected")
		return nil, apperr.WithSubject(apperr.KindUpload, "upload", name,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.WithSubject(apperr.KindUpload, "upload", name, fmt.Errorf("decode response: %w", err))
	}
	if result.Filename == "" {
		return nil, apperr.WithSubject(apperr.KindUpload, "upload", name, errors.New("response has no filename"))
	}

	log.Info().Str("file", name).Str("stored", result.Filename).Int64("size", result.Size).Msg("Uploaded file")
	return &result, nil
}

// Library lists the songs uploaded to the service as tracks.
func (c *Client) Library(ctx context.Context) ([]track.Track, error) {
	var resp libraryResponse
	if err := c.getJSON(ctx, c.baseURL+"/library", &resp); err != nil {
		return nil, fmt.Errorf("library: %w", err)
	}

	tracks := make([]track.Track, 0, len(resp.Songs))
	for _, s := range resp.Songs {
		if s.Filename == "" {
			continue
		}
		tracks = append(tracks, track.NewUploaded(s.Filename, s.OriginalName, c.baseURL))
	}
	return tracks, nil
}

// DeleteSong removes an uploaded file from the service.
func (c *Client) DeleteSong(ctx context.Context, filename string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/songs/"+url.PathEscape(filename), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delete %s: status %d", filename, resp.StatusCode)
	}
	return nil
}

// Health fetches the service status.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, c.baseURL+"/health", &h); err != nil {
		return nil, apperr.New(apperr.KindConnectivity, "health", err)
	}
	return &h, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ParseDuration converts "m:ss" or "h:mm:ss" to seconds. Unparseable
// input yields 0.
func ParseDuration(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return float64(total)
}
