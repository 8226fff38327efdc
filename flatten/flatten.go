// Package flatten lowers nested JSON records into dotted-path rows for
// tabular export.
package flatten

import (
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// DefaultSep joins the segments of a flattened key.
const DefaultSep = "."

// Row maps a dotted path to a scalar: nil, bool, json.Number, float64 or string.
type Row map[string]any

// Options control the key layout of a flattened row.
type Options struct {
	Prefix string // prepended to every top-level key
	Sep    string // defaults to DefaultSep
}

// Flatten flattens rec with the default options.
func Flatten(rec map[string]any) Row {
	return FlattenWith(rec, Options{})
}

// FlattenWith flattens rec into a new Row.
//
// Objects nest their keys under the parent key. A list whose first element is
// a scalar collapses into one space-joined string. A list of objects keeps
// its first element under the parent key and suffixes the others with their
// 1-based position, so a, a2, a3. Nulls are kept as explicit nil entries.
func FlattenWith(rec map[string]any, opts Options) Row {
	f := flattener{sep: opts.Sep, row: make(Row)}
	if f.sep == "" {
		f.sep = DefaultSep
	}
	f.object(opts.Prefix, rec)
	return f.row
}

type flattener struct {
	sep string
	row Row
}

func (f *flattener) object(prefix string, obj map[string]any) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + f.sep + k
		}
		f.value(key, obj[k])
	}
}

func (f *flattener) value(key string, v any) {
	switch t := v.(type) {
	case map[string]any:
		f.object(key, t)
	case []any:
		f.list(key, t)
	default:
		f.row[key] = t
	}
}

func (f *flattener) list(key string, items []any) {
	if len(items) == 0 {
		return
	}

	if isScalar(items[0]) {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = Cell(item)
		}
		f.row[key] = strings.Join(parts, " ")
		return
	}

	for i, item := range items {
		elemKey := key
		if i > 0 {
			elemKey = key + strconv.Itoa(i+1)
		}
		// Nested lists and nulls inside a composite list carry no keys.
		if obj, ok := item.(map[string]any); ok {
			f.object(elemKey, obj)
		}
	}
}

// isScalar reports whether v decides a list to be collapsed into a string.
// Booleans count as numbers here.
func isScalar(v any) bool {
	switch v.(type) {
	case string, json.Number, float64, int, int64, bool:
		return true
	}
	return false
}

// Cell renders a flattened value as CSV cell text. Nil becomes the empty
// string, numbers keep their JSON text.
func Cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Values renders the row against a fixed column order, using the empty string
// for every column the row does not carry.
func (r Row) Values(columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		if v, ok := r[col]; ok {
			out[i] = Cell(v)
		}
	}
	return out
}
