package fhir

import "regexp"

// PatientReferencePrefix starts every relative reference to a Patient resource.
const PatientReferencePrefix = "Patient/"

// Join fields that point from a secondary resource back to its Patient.
const (
	EobPatientField          = "patient"
	CoverageBeneficiaryField = "beneficiary"
)

// Mirrors a Unicode-aware [\W_]+: everything that is not a letter or digit.
var nonAlphanumeric = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// NormalizeID strips every non-alphanumeric character from a resource id.
// Seed data carries dashed ids on Patient while EOB references drop them.
func NormalizeID(id string) string {
	return nonAlphanumeric.ReplaceAllString(id, "")
}

// PatientReference builds the normalized reference a secondary resource uses
// to point at the patient with the given id.
func PatientReference(id string) string {
	return PatientReferencePrefix + NormalizeID(id)
}

// ReferenceOf returns rec[field].reference when it is a string.
func ReferenceOf(rec map[string]any, field string) (string, bool) {
	v, ok := Get(rec, field, "reference")
	if !ok {
		return "", false
	}
	ref, ok := v.(string)
	return ref, ok
}
