package cclf

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/SanteonNL/claimtools/flatten"
	"github.com/SanteonNL/claimtools/models/fhir"
	"github.com/SanteonNL/claimtools/ndjson"
)

// pathStep matches one element of a mapping note, e.g. "coding", "coding[N]"
// or "extension[1]". N and X stand for "any element" and read the first.
var pathStep = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]*)(?:\[(N|X|[0-9]+)\])?$`)

// ParseSource turns a mapping note such as "Eob.billablePeriod.start" into an
// accessor on the named resource. Notes starting with "Not mapped" and notes
// naming no Patient, Eob or Coverage resource become NotMapped. A note on a
// known resource whose path cannot be parsed always misses.
func ParseSource(note string) Accessor {
	note = strings.TrimSpace(note)
	if strings.HasPrefix(strings.ToLower(note), strings.ToLower(string(NotMapped))) {
		return NotMapped
	}

	parts := strings.Split(note, ".")
	root := parts[0]
	if i := strings.IndexByte(root, '['); i >= 0 {
		root = root[:i]
	}

	fn := compilePath(parts[1:])
	switch strings.ReplaceAll(strings.ToLower(root), " ", "") {
	case "patient":
		return PatientAccessor(fn)
	case "eob", "explanationofbenefit":
		return EobAccessor(fn)
	case "coverage":
		return CoverageAccessor(fn)
	default:
		return NotMapped
	}
}

func compilePath(parts []string) AccessorFunc {
	if len(parts) == 0 {
		return never
	}
	path := make([]any, 0, 2*len(parts))
	for _, part := range parts {
		m := pathStep.FindStringSubmatch(part)
		if m == nil {
			return never
		}
		path = append(path, m[1])
		switch m[2] {
		case "":
		case "N", "X":
			path = append(path, 0)
		default:
			n, err := strconv.Atoi(m[2])
			if err != nil {
				return never
			}
			path = append(path, n)
		}
	}
	return walk(path)
}

// walk is like at, except that a field step applied to a list reads the
// field of its first element.
func walk(path []any) AccessorFunc {
	return func(rec ndjson.Record) (string, bool) {
		var cur any = map[string]any(rec)
		for _, step := range path {
			if _, field := step.(string); field {
				if list, ok := cur.([]any); ok && len(list) > 0 {
					cur = list[0]
				}
			}
			next, ok := fhir.Get(cur, step)
			if !ok {
				return "", false
			}
			cur = next
		}
		if cur == nil {
			return "", false
		}
		return flatten.Cell(cur), true
	}
}

func never(ndjson.Record) (string, bool) { return "", false }
