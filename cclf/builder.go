package cclf

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/SanteonNL/claimtools/models/fhir"
	"github.com/SanteonNL/claimtools/ndjson"
	"github.com/rs/zerolog"
)

// Sources are the FHIR exports a CCLF file is built from. Coverage and Eob
// may be nil when the column map does not read from them.
type Sources struct {
	Patient  *ndjson.Source
	Coverage *ndjson.Source
	Eob      *ndjson.Source
}

// Stats describe the cells a build could not fill.
type Stats struct {
	Rows int
	// Misses counts empty cells per column, whether the join found no record
	// or the record lacked the field.
	Misses map[string]int
	// Unmatched counts patients without a record in the eob or coverage source.
	Unmatched map[string]int
}

// Builder produces CCLF rows, one per patient record.
type Builder struct {
	log      zerolog.Logger
	progress int
}

func NewBuilder(log zerolog.Logger, progress int) *Builder {
	return &Builder{log: log, progress: progress}
}

// Build writes the header and every row of m to w as CSV.
func (b *Builder) Build(ctx context.Context, m ColumnMap, src Sources, w io.Writer) (Stats, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(m.Headers()); err != nil {
		return Stats{}, fmt.Errorf("failed to write header: %w", err)
	}

	stats, err := b.Rows(ctx, m, src, cw.Write)
	if err != nil {
		return stats, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return stats, fmt.Errorf("failed to write %s: %w", m.Name, err)
	}
	return stats, nil
}

// BuildRows collects the rows of m in memory, without header.
func (b *Builder) BuildRows(ctx context.Context, m ColumnMap, src Sources) ([][]string, Stats, error) {
	var rows [][]string
	stats, err := b.Rows(ctx, m, src, func(row []string) error {
		rows = append(rows, row)
		return nil
	})
	return rows, stats, err
}

// Rows calls fn with each row of m in patient file order.
func (b *Builder) Rows(ctx context.Context, m ColumnMap, src Sources, fn func([]string) error) (Stats, error) {
	stats := Stats{Misses: make(map[string]int), Unmatched: make(map[string]int)}

	if err := m.validate(); err != nil {
		return stats, err
	}
	if src.Patient == nil {
		return stats, fmt.Errorf("%s: patient source is required", m.Name)
	}

	b.log.Info().Str("cclf", m.Name).Msg("Building CCLF file")

	needCoverage, needEob := m.needs()
	var coverage, eob *Index
	var err error
	if needCoverage {
		if coverage, err = b.index(ctx, m.Name, src.Coverage, "coverage", fhir.CoverageBeneficiaryField); err != nil {
			return stats, err
		}
	}
	if needEob {
		if eob, err = b.index(ctx, m.Name, src.Eob, "eob", fhir.EobPatientField); err != nil {
			return stats, err
		}
	}

	var total int
	if b.progress > 0 {
		if total, err = src.Patient.Count(ctx); err != nil {
			return stats, err
		}
	}

	err = src.Patient.Each(ctx, func(_ int, patient ndjson.Record) error {
		j := joins{coverage: coverage, eob: eob}
		if id, ok := fhir.GetString(map[string]any(patient), "id"); ok {
			j.ref = fhir.PatientReference(id)
		}

		row := make([]string, len(m.Columns))
		for i, col := range m.Columns {
			cell, ok := j.cell(col.Accessor, patient, &stats)
			if !ok {
				stats.Misses[col.Name]++
			}
			row[i] = cell
		}

		if err := fn(row); err != nil {
			return err
		}
		stats.Rows++
		if b.progress > 0 && stats.Rows%b.progress == 0 {
			b.log.Info().Str("cclf", m.Name).Int("rows", stats.Rows).Int("total", total).Msg("Progress")
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	b.logStats(m.Name, stats)
	return stats, nil
}

func (b *Builder) index(ctx context.Context, name string, src *ndjson.Source, kind, field string) (*Index, error) {
	if src == nil {
		return nil, fmt.Errorf("%s: %s source is required", name, kind)
	}
	ix, err := BuildIndex(ctx, src, field)
	if err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", kind, err)
	}
	b.log.Debug().
		Str("source", src.Name()).
		Str("field", field).
		Int("records", ix.Records).
		Int("references", ix.Len()).
		Int("unreferenced", ix.Unreferenced).
		Int("duplicates", ix.Duplicates).
		Msg("Indexed secondary source")
	return ix, nil
}

func (b *Builder) logStats(name string, stats Stats) {
	event := b.log.Info().Str("cclf", name).Int("rows", stats.Rows)
	for kind, n := range stats.Unmatched {
		event = event.Int("unmatched_"+kind, n)
	}
	event.Msg("Built CCLF file")

	for col, n := range stats.Misses {
		b.log.Debug().Str("cclf", name).Str("column", col).Int("empty", n).Msg("Column left empty")
	}
}

// joins resolves the secondary records of one patient, each at most once.
type joins struct {
	ref      string
	coverage *Index
	eob      *Index

	coverageRec, eobRec     ndjson.Record
	coverageDone, eobDone   bool
	coverageFound, eobFound bool
}

func (j *joins) cell(acc Accessor, patient ndjson.Record, stats *Stats) (string, bool) {
	switch a := acc.(type) {
	case Literal:
		return string(a), true
	case PatientAccessor:
		return a(patient)
	case EobAccessor:
		if !j.eobDone {
			j.eobRec, j.eobFound = j.lookup(j.eob)
			j.eobDone = true
			if !j.eobFound {
				stats.Unmatched["eob"]++
			}
		}
		if !j.eobFound {
			return "", false
		}
		return a(j.eobRec)
	case CoverageAccessor:
		if !j.coverageDone {
			j.coverageRec, j.coverageFound = j.lookup(j.coverage)
			j.coverageDone = true
			if !j.coverageFound {
				stats.Unmatched["coverage"]++
			}
		}
		if !j.coverageFound {
			return "", false
		}
		return a(j.coverageRec)
	default:
		return "", false
	}
}

func (j *joins) lookup(ix *Index) (ndjson.Record, bool) {
	if ix == nil || j.ref == "" {
		return nil, false
	}
	return ix.Lookup(j.ref)
}
