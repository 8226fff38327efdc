// Package cclf maps FHIR Patient, Coverage and ExplanationOfBenefit exports
// onto the CCLF claim file layouts.
package cclf

import (
	"fmt"

	"github.com/SanteonNL/claimtools/ndjson"
)

// NotMapped is emitted for columns without a FHIR source.
const NotMapped Literal = "Not mapped"

// AccessorFunc extracts one cell from a record. It reports false when the
// record does not carry the value.
type AccessorFunc func(rec ndjson.Record) (string, bool)

// Accessor is one of Literal, PatientAccessor, EobAccessor or
// CoverageAccessor.
type Accessor interface {
	isAccessor()
}

// Literal is written to every row as is.
type Literal string

// PatientAccessor reads from the current patient record.
type PatientAccessor AccessorFunc

// EobAccessor reads from the first ExplanationOfBenefit referencing the patient.
type EobAccessor AccessorFunc

// CoverageAccessor reads from the first Coverage whose beneficiary is the patient.
type CoverageAccessor AccessorFunc

func (Literal) isAccessor()          {}
func (PatientAccessor) isAccessor()  {}
func (EobAccessor) isAccessor()      {}
func (CoverageAccessor) isAccessor() {}

// Column is one output column and where its value comes from.
type Column struct {
	Name     string
	Accessor Accessor
}

// ColumnMap is the ordered column layout of one CCLF file.
type ColumnMap struct {
	Name    string
	Columns []Column
}

// Headers returns the column names in declared order.
func (m ColumnMap) Headers() []string {
	headers := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		headers[i] = c.Name
	}
	return headers
}

// needs reports which secondary sources the map reads from.
func (m ColumnMap) needs() (coverage, eob bool) {
	for _, c := range m.Columns {
		switch c.Accessor.(type) {
		case CoverageAccessor:
			coverage = true
		case EobAccessor:
			eob = true
		}
	}
	return coverage, eob
}

// validate rejects columns without an accessor.
func (m ColumnMap) validate() error {
	for _, c := range m.Columns {
		switch c.Accessor.(type) {
		case Literal, PatientAccessor, EobAccessor, CoverageAccessor:
		default:
			return fmt.Errorf("%s: column %s has no accessor", m.Name, c.Name)
		}
	}
	return nil
}
