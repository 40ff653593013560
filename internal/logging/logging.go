// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level and outputs.
type Options struct {
	Level      string // debug, info, warn, error
	JSON       bool   // raw JSON on stderr instead of the console writer
	File       string // rotating log file, empty for none
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel maps a config level name to zerolog, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	switch name {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Setup installs the global logger. The returned closer releases the log
// file, if any.
func Setup(opts Options) io.Closer {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	w, closer := writer(opts, os.Stderr)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return closer
}

func writer(opts Options, stderr io.Writer) (io.Writer, io.Closer) {
	var console io.Writer = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	if opts.JSON {
		console = stderr
	}

	if opts.File == "" {
		return console, nopCloser{}
	}

	if dir := filepath.Dir(opts.File); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Warn().Err(err).Str("file", opts.File).Msg("Cannot create log directory, logging to console only")
			return console, nopCloser{}
		}
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}
	return zerolog.MultiLevelWriter(console, file), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
