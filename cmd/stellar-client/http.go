package main

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-offline-player/internal/version"
)

// healthStatus is the body of /health.
type healthStatus struct {
	Status    string `json:"status"`
	MPD       string `json:"mpd"`
	Offline   string `json:"offline"`
	APIOnline bool   `json:"apiOnline"`
}

// corsMiddleware sets CORS headers on every response, error responses
// included, so the browser never blocks a cross-origin read of the body.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if origin != "*" {
			w.Header().Add("Vary", "Origin")
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// newMux routes the socket.io endpoint, health and version, and the
// single-page app when staticDir is set.
func newMux(socket http.Handler, staticDir string, health func() healthStatus) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/socket.io/", socket)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := health()
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	if staticDir != "" {
		log.Info().Str("dir", staticDir).Msg("Serving static files")
		mux.Handle("/", spaHandler(staticDir))
	}

	return mux
}

// spaHandler serves files from dir and falls back to index.html for
// paths that do not exist, so client-side routes resolve.
func spaHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.ServeFile(w, r, index)
			return
		}
		path := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, index)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
