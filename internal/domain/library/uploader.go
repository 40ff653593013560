package library

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/edumarques81/stellar-offline-player/internal/apperr"
	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
	"github.com/edumarques81/stellar-offline-player/internal/infra/cache"
	"github.com/edumarques81/stellar-offline-player/internal/infra/remote"
	"github.com/rs/zerolog/log"
)

// Outcome of a single file in a batch upload.
type Outcome string

const (
	OutcomeUploaded Outcome = "uploaded"
	OutcomeQueued   Outcome = "queued"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// ErrNotAudio marks files skipped because of their extension.
var ErrNotAudio = errors.New("not an audio file")

// UploadClient sends one file to the service.
type UploadClient interface {
	Upload(ctx context.Context, name string, body io.Reader) (*remote.UploadResult, error)
}

// FileResult describes what happened to one file.
type FileResult struct {
	Path    string       `json:"path"`
	Outcome Outcome      `json:"outcome"`
	Track   *track.Track `json:"track,omitempty"`
	Err     error        `json:"-"`
}

// BatchResult is the per-file report of UploadAll.
type BatchResult struct {
	Files []FileResult `json:"files"`
}

// Count returns how many files ended with outcome o.
func (b BatchResult) Count(o Outcome) int {
	n := 0
	for _, f := range b.Files {
		if f.Outcome == o {
			n++
		}
	}
	return n
}

// Uploader uploads files and adds the stored tracks to a Library.
type Uploader struct {
	client  UploadClient
	library *Library
	apiBase string
}

// NewUploader creates an uploader. apiBase is used to build stream URLs.
func NewUploader(client UploadClient, lib *Library, apiBase string) *Uploader {
	return &Uploader{client: client, library: lib, apiBase: apiBase}
}

// UploadAll uploads each path in order. A failing file never stops the
// rest of the batch; uploads queued for retry are not failures.
func (u *Uploader) UploadAll(ctx context.Context, paths []string) BatchResult {
	var result BatchResult
	for _, p := range paths {
		result.Files = append(result.Files, u.uploadOne(ctx, p))
	}

	log.Info().
		Int("uploaded", result.Count(OutcomeUploaded)).
		Int("queued", result.Count(OutcomeQueued)).
		Int("failed", result.Count(OutcomeFailed)).
		Int("skipped", result.Count(OutcomeSkipped)).
		Msg("Upload batch finished")
	return result
}

func (u *Uploader) uploadOne(ctx context.Context, path string) FileResult {
	name := filepath.Base(path)
	if !track.IsAudioFile(name) {
		return FileResult{Path: path, Outcome: OutcomeSkipped, Err: ErrNotAudio}
	}

	f, err := os.Open(path)
	if err != nil {
		return FileResult{Path: path, Outcome: OutcomeFailed, Err: apperr.WithSubject(apperr.KindUpload, "upload", name, err)}
	}
	defer f.Close()

	res, err := u.client.Upload(ctx, name, f)
	switch {
	case errors.Is(err, apperr.ErrConnectivity):
		log.Info().Str("file", name).Msg("Upload queued until connectivity returns")
		return FileResult{Path: path, Outcome: OutcomeQueued, Err: err}
	case err != nil:
		log.Warn().Err(err).Str("file", name).Msg("Upload failed")
		return FileResult{Path: path, Outcome: OutcomeFailed, Err: err}
	}

	t := track.NewUploaded(res.Filename, name, u.apiBase)
	u.library.Add(t)
	return FileResult{Path: path, Outcome: OutcomeUploaded, Track: &t}
}

// ReplayListener returns a callback for the offline worker that adds
// uploads queued while offline to l once the service has stored them.
func (l *Library) ReplayListener(apiBase string) func(e *cache.RetryEntry, body []byte) {
	return func(e *cache.RetryEntry, body []byte) {
		if e.Method != http.MethodPost {
			return
		}
		u, err := url.Parse(e.URL)
		if err != nil || path.Base(u.Path) != "upload" {
			return
		}

		var res remote.UploadResult
		if err := json.Unmarshal(body, &res); err != nil || res.Filename == "" {
			log.Warn().Err(err).Str("id", e.ID).Msg("Replayed upload returned no filename")
			return
		}
		name := res.OriginalName
		if name == "" {
			name = res.Filename
		}
		l.Add(track.NewUploaded(res.Filename, name, apiBase))
	}
}
