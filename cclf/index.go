package cclf

import (
	"context"

	"github.com/SanteonNL/claimtools/models/fhir"
	"github.com/SanteonNL/claimtools/ndjson"
)

// Index maps a patient reference to the first record of a secondary source
// that carries it in its join field.
type Index struct {
	field string
	refs  map[string]ndjson.Record

	Records      int // records scanned
	Unreferenced int // records without a string reference in the join field
	Duplicates   int // records shadowed by an earlier record with the same reference
}

// BuildIndex scans src once. Later records with an already indexed reference
// are ignored so lookups keep first-in-file-order semantics.
func BuildIndex(ctx context.Context, src *ndjson.Source, field string) (*Index, error) {
	ix := &Index{field: field, refs: make(map[string]ndjson.Record)}

	err := src.Each(ctx, func(_ int, rec ndjson.Record) error {
		ix.Records++
		ref, ok := fhir.ReferenceOf(rec, field)
		if !ok {
			ix.Unreferenced++
			return nil
		}
		if _, exists := ix.refs[ref]; exists {
			ix.Duplicates++
			return nil
		}
		ix.refs[ref] = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}

// Lookup returns the record indexed under ref.
func (ix *Index) Lookup(ref string) (ndjson.Record, bool) {
	rec, ok := ix.refs[ref]
	return rec, ok
}

// Len is the number of distinct references.
func (ix *Index) Len() int { return len(ix.refs) }

// Field is the join field the index was built on.
func (ix *Index) Field() string { return ix.field }
