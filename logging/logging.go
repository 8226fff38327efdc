// Package logging builds the console logger every tool runs with.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

type Options struct {
	Verbose bool
	// File additionally receives every log line as JSON when set.
	File string
}

// New returns a logger writing human readable lines to out. The returned
// closer releases the log file, if any.
func New(out io.Writer, opts Options) (zerolog.Logger, io.Closer, error) {
	var w io.Writer = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = out
	})

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), os.ModePerm); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
		logFile, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = zerolog.MultiLevelWriter(w, logFile)
		closer = logFile
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	log := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()
	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
