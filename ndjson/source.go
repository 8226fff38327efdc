package ndjson

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// MaxLineSize bounds a single NDJSON line. FHIR bulk exports put a whole
// resource on one line, EOBs with many items easily exceed bufio's default.
const MaxLineSize = 64 * 1024 * 1024

// ErrMalformed is matched by every decode failure of a source line.
var ErrMalformed = errors.New("malformed NDJSON line")

// Record is one JSON object decoded from a single line.
type Record map[string]any

// LineError reports the 1-based line a decode failure happened on.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrMalformed) match any LineError.
func (e *LineError) Is(target error) bool { return target == ErrMalformed }

// Source is a rewindable NDJSON input.
type Source struct {
	name   string
	r      io.ReadSeeker
	closer io.Closer
}

// Open opens the NDJSON file at path.
func Open(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source %s: %w", path, err)
	}
	return &Source{name: path, r: file, closer: file}, nil
}

// NewSource wraps an in-memory or already opened reader.
func NewSource(name string, r io.ReadSeeker) *Source {
	return &Source{name: name, r: r}
}

// FromString is a convenience for small inputs held in memory.
func FromString(name, data string) *Source {
	return NewSource(name, bytes.NewReader([]byte(data)))
}

func (s *Source) Name() string { return s.name }

// Rewind moves the source back to its first line.
func (s *Source) Rewind() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind %s: %w", s.name, err)
	}
	return nil
}

func (s *Source) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// EachLine rewinds the source and calls fn for every non-blank line with its
// 1-based line number. The raw slice is only valid during the call.
func (s *Source) EachLine(ctx context.Context, fn func(line int, raw []byte) error) error {
	if err := s.Rewind(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := fn(line, raw); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s after line %d: %w", s.name, line, err)
	}
	return nil
}

// Each decodes every line strictly; the first malformed line aborts the scan
// with a *LineError.
func (s *Source) Each(ctx context.Context, fn func(line int, rec Record) error) error {
	return s.EachLine(ctx, func(line int, raw []byte) error {
		rec, err := Decode(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, &LineError{Line: line, Err: err})
		}
		return fn(line, rec)
	})
}

// Count returns the number of non-blank lines without decoding them.
func (s *Source) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.EachLine(ctx, func(int, []byte) error {
		n++
		return nil
	})
	return n, err
}

// Decode parses one line into a Record. Numbers are kept as json.Number so
// their source text survives the round trip to CSV.
func Decode(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("expected a JSON object, got null")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON object")
	}
	return rec, nil
}
