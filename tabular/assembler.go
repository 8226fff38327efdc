// Package tabular turns NDJSON sources into CSV with a column set discovered
// from the data itself.
package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/SanteonNL/claimtools/flatten"
	"github.com/SanteonNL/claimtools/ndjson"
	"github.com/rs/zerolog"
)

// DefaultProgress is the record interval between progress log lines.
const DefaultProgress = 10000

// Options configure an Assembler.
type Options struct {
	// SkipInvalid logs and skips malformed lines instead of failing the run.
	SkipInvalid bool
	// Progress logs a line every n records; 0 disables progress logging.
	Progress int
	Flatten  flatten.Options
}

// Stats summarise a conversion.
type Stats struct {
	Records int
	Skipped int
	Columns int
}

// Assembler drives the flattener over an NDJSON source in two passes: the
// first discovers the columns, the second writes the rows.
type Assembler struct {
	opts Options
	log  zerolog.Logger
}

func NewAssembler(log zerolog.Logger, opts Options) *Assembler {
	return &Assembler{opts: opts, log: log}
}

// Discover is the first pass. It only keeps the key set in memory.
func (a *Assembler) Discover(ctx context.Context, src *ndjson.Source) (*Columns, Stats, error) {
	cols := NewColumns()
	var stats Stats

	err := a.each(ctx, src, "discover", &stats, func(row flatten.Row) error {
		cols.Add(row)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	stats.Columns = cols.Len()
	a.log.Debug().
		Str("source", src.Name()).
		Int("records", stats.Records).
		Int("skipped", stats.Skipped).
		Int("columns", stats.Columns).
		Msg("Discovered columns")
	return cols, stats, nil
}

// Emit is the second pass: one CSV row per record, in columns order.
func (a *Assembler) Emit(ctx context.Context, src *ndjson.Source, columns []string, w *csv.Writer) (Stats, error) {
	stats := Stats{Columns: len(columns)}
	err := a.each(ctx, src, "emit", &stats, func(row flatten.Row) error {
		return w.Write(row.Values(columns))
	})
	return stats, err
}

// Convert runs both passes and writes header and rows to w.
func (a *Assembler) Convert(ctx context.Context, src *ndjson.Source, w io.Writer) (Stats, error) {
	a.log.Info().Str("source", src.Name()).Msg("Flattening source")

	cols, stats, err := a.Discover(ctx, src)
	if err != nil {
		return stats, err
	}
	columns := cols.Sorted()

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return stats, fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := a.Emit(ctx, src, columns, cw); err != nil {
		return stats, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return stats, fmt.Errorf("failed to write CSV: %w", err)
	}

	a.log.Info().
		Str("source", src.Name()).
		Int("records", stats.Records).
		Int("skipped", stats.Skipped).
		Int("columns", stats.Columns).
		Msg("Flattened source")
	return stats, nil
}

func (a *Assembler) each(ctx context.Context, src *ndjson.Source, pass string, stats *Stats, fn func(flatten.Row) error) error {
	return src.EachLine(ctx, func(line int, raw []byte) error {
		rec, err := ndjson.Decode(raw)
		if err != nil {
			lineErr := &ndjson.LineError{Line: line, Err: err}
			if !a.opts.SkipInvalid {
				return fmt.Errorf("%s: %w", src.Name(), lineErr)
			}
			stats.Skipped++
			if pass == "discover" {
				a.log.Warn().Err(lineErr).Str("source", src.Name()).Msg("Skipping malformed line")
			}
			return nil
		}

		if err := fn(flatten.FlattenWith(rec, a.opts.Flatten)); err != nil {
			return err
		}
		stats.Records++
		if a.opts.Progress > 0 && stats.Records%a.opts.Progress == 0 {
			a.log.Info().Str("pass", pass).Int("records", stats.Records).Msg("Progress")
		}
		return nil
	})
}

// Assemble is the in-memory form of a conversion: it returns the sorted
// columns and one row per line padded with empty strings for absent columns.
// Any malformed line fails the whole call.
func Assemble(lines []string) ([]string, []flatten.Row, error) {
	cols := NewColumns()
	rows := make([]flatten.Row, 0, len(lines))

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := ndjson.Decode([]byte(line))
		if err != nil {
			return nil, nil, &ndjson.LineError{Line: i + 1, Err: err}
		}
		row := flatten.Flatten(rec)
		cols.Add(row)
		rows = append(rows, row)
	}

	columns := cols.Sorted()
	for _, row := range rows {
		Pad(row, columns)
	}
	return columns, rows, nil
}

// Pad fills every column row lacks with the empty string.
func Pad(row flatten.Row, columns []string) {
	for _, col := range columns {
		if _, ok := row[col]; !ok {
			row[col] = ""
		}
	}
}

// IsMalformed reports whether err was caused by an undecodable input line.
func IsMalformed(err error) bool {
	return errors.Is(err, ndjson.ErrMalformed)
}
