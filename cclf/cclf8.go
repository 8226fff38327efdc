package cclf

import (
	"regexp"
	"strings"

	"github.com/SanteonNL/claimtools/flatten"
	"github.com/SanteonNL/claimtools/models/fhir"
	"github.com/SanteonNL/claimtools/ndjson"
)

var monthlyVariable = regexp.MustCompile(`^[a-z_]+(0[1-9]|1[0-2])$`)

// CCLF8 is the beneficiary demographics file. Patient is the primary
// resource, so its rows also identify beneficiaries for the other files.
func CCLF8() ColumnMap {
	return ColumnMap{
		Name: "CCLF8",
		Columns: []Column{
			{"BENE_MBI_ID", PatientAccessor(currentIdentifier)},
			{"BENE_HIC_NUM", NotMapped},
			{"BENE_FIPS_STATE_CD", PatientAccessor(at("address", 0, "state"))},
			{"BENE_FIPS_CNTY_CD", NotMapped},
			{"BENE_ZIP_CD", PatientAccessor(at("address", 0, "postalCode"))},
			{"BENE_DOB", PatientAccessor(at("birthDate"))},
			{"BENE_SEX_CD", PatientAccessor(at("gender"))},
			{"BENE_RACE_CD", PatientAccessor(extensionCode("race"))},
			{"BENE_AGE", NotMapped},
			{"BENE_MDCR_STUS_CD", CoverageAccessor(extensionCode("ms_cd"))},
			{"BENE_DUAL_STUS_CD", CoverageAccessor(monthlyCode("dual_"))},
			{"BENE_DEATH_DT", PatientAccessor(deceased)},
			{"BENE_RNG_BGN_DT", EobAccessor(at("hospitalization", 0, "start"))},
			{"BENE_RNG_END_DT", EobAccessor(at("hospitalization", 0, "end"))},
			{"BENE_1ST_NAME", PatientAccessor(at("name", 0, "given", 0))},
			{"BENE_MIDL_NAME", PatientAccessor(at("name", 0, "given", 1))},
			{"BENE_LAST_NAME", PatientAccessor(at("name", 0, "family"))},
			{"BENE_ORGNL_ENTLMT_RSN_CD", CoverageAccessor(extensionCode("orec"))},
			{"BENE_ENTLMT_BUYIN_IND", CoverageAccessor(monthlyCode("buyin"))},
			{"BENE_PART_A_ENRLMT_BGN_DT", CoverageAccessor(at("period", "start"))},
			{"BENE_PART_B_ENRLMT_BGN_DT", CoverageAccessor(at("period", "start"))},
			{"BENE_LINE_1_ADR", PatientAccessor(at("address", 0, "line", 0))},
			{"BENE_LINE_2_ADR", PatientAccessor(at("address", 0, "line", 1))},
			{"BENE_LINE_3_ADR", PatientAccessor(at("address", 0, "line", 2))},
			{"BENE_LINE_4_ADR", PatientAccessor(at("address", 0, "line", 3))},
			{"BENE_LINE_5_ADR", PatientAccessor(at("address", 0, "line", 4))},
			{"BENE_LINE_6_ADR", PatientAccessor(at("address", 0, "line", 5))},
			{"GEO_ZIP_PLC_NAME", PatientAccessor(at("address", 0, "city"))},
			{"GEO_USPS_STATE_CD", PatientAccessor(at("address", 0, "state"))},
			{"GEO_ZIP5_CD", PatientAccessor(at("address", 0, "postalCode"))},
			{"GEO_ZIP4_CD", PatientAccessor(at("address", 0, "postalCode"))},
		},
	}
}

// at reads the value at path and renders it as a cell.
func at(path ...any) AccessorFunc {
	return func(rec ndjson.Record) (string, bool) {
		v, ok := fhir.Get(map[string]any(rec), path...)
		if !ok {
			return "", false
		}
		return flatten.Cell(v), true
	}
}

// currentIdentifier returns the value of the identifier flagged "current",
// which is the MBI in Blue Button patient resources.
func currentIdentifier(rec ndjson.Record) (string, bool) {
	for _, ident := range fhir.List(map[string]any(rec), "identifier") {
		for _, ext := range fhir.List(ident, "extension") {
			if code, _ := fhir.GetString(ext, "valueCoding", "code"); code == "current" {
				return fhir.GetString(ident, "value")
			}
		}
	}
	return "", false
}

// extensionCode returns valueCoding.code of the first extension whose url
// ends in the given variable name, e.g. ".../variables/ms_cd".
func extensionCode(variable string) AccessorFunc {
	return func(rec ndjson.Record) (string, bool) {
		for _, ext := range fhir.List(map[string]any(rec), "extension") {
			url, _ := fhir.GetString(ext, "url")
			if url != variable && !strings.HasSuffix(url, "/"+variable) {
				continue
			}
			return fhir.GetString(ext, "valueCoding", "code")
		}
		return "", false
	}
}

// monthlyCode returns valueCoding.code of the first monthly variable with the
// given prefix, such as dual_01 or buyin12.
func monthlyCode(prefix string) AccessorFunc {
	return func(rec ndjson.Record) (string, bool) {
		for _, ext := range fhir.List(map[string]any(rec), "extension") {
			url, _ := fhir.GetString(ext, "url")
			variable := url[strings.LastIndexByte(url, '/')+1:]
			if !monthlyVariable.MatchString(variable) || !strings.HasPrefix(variable, prefix) {
				continue
			}
			if code, ok := fhir.GetString(ext, "valueCoding", "code"); ok {
				return code, true
			}
		}
		return "", false
	}
}

// deceased prefers the dateTime choice of Patient.deceased[x].
func deceased(rec ndjson.Record) (string, bool) {
	if dt, ok := fhir.GetString(map[string]any(rec), "deceasedDateTime"); ok {
		return dt, true
	}
	return at("deceased")(rec)
}
