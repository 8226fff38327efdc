package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/SanteonNL/claimtools/ndjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const patients = `{"resourceType":"Patient","id":"1","gender":"female","name":[{"family":"Doe","given":["Jane","Q"]}]}
{"id":"2","resourceType":"Patient","birthDate":"1950-01-01","name":[{"family":"Roe"},{"family":"Smith","use":"old"}]}
{"id":"3","Zeta":true,"address":[{"city":"Baltimore, MD","line":["1 \"A\" St"]}]}
`

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestConvert(t *testing.T) {
	var out bytes.Buffer
	a := NewAssembler(zerolog.Nop(), Options{})

	stats, err := a.Convert(context.Background(), ndjson.FromString("patients", patients), &out)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 0, stats.Skipped)

	records := readCSV(t, out.Bytes())
	require.Len(t, records, 4)

	expectedHeader := []string{
		"Zeta", "address.city", "address.line", "birthDate", "gender", "id",
		"name.family", "name.given", "name2.family", "name2.use", "resourceType",
	}
	assert.Equal(t, expectedHeader, records[0])
	assert.Equal(t, stats.Columns, len(expectedHeader))

	assert.Equal(t, []string{"", "", "", "", "female", "1", "Doe", "Jane Q", "", "", "Patient"}, records[1])
	assert.Equal(t, []string{"", "", "", "1950-01-01", "", "2", "Roe", "", "Smith", "old", "Patient"}, records[2])
	assert.Equal(t, []string{"true", "Baltimore, MD", `1 "A" St`, "", "", "3", "", "", "", "", ""}, records[3])

	for _, rec := range records {
		assert.Len(t, rec, len(expectedHeader))
	}
}

func TestConvertFailsFast(t *testing.T) {
	var out bytes.Buffer
	a := NewAssembler(zerolog.Nop(), Options{})

	_, err := a.Convert(context.Background(), ndjson.FromString("bad", "{\"id\":\"1\"}\nnot json\n"), &out)
	require.Error(t, err)
	assert.True(t, IsMalformed(err))

	var lineErr *ndjson.LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 2, lineErr.Line)
	assert.Empty(t, out.Bytes(), "nothing is written before discovery completes")
}

func TestConvertSkipInvalid(t *testing.T) {
	var out bytes.Buffer
	a := NewAssembler(zerolog.Nop(), Options{SkipInvalid: true, Progress: 1})

	stats, err := a.Convert(context.Background(), ndjson.FromString("mixed", "{\"id\":\"1\"}\n{oops\n{\"id\":\"2\",\"x\":1}\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, [][]string{{"id", "x"}, {"1", ""}, {"2", "1"}}, readCSV(t, out.Bytes()))
}

func TestDiscoverOrderIsIndependentOfInputOrder(t *testing.T) {
	a := NewAssembler(zerolog.Nop(), Options{})
	forward := ndjson.FromString("f", "{\"b\":1,\"A\":2}\n{\"a\":3}\n")
	backward := ndjson.FromString("b", "{\"a\":3}\n{\"A\":2,\"b\":1}\n")

	c1, _, err := a.Discover(context.Background(), forward)
	require.NoError(t, err)
	c2, _, err := a.Discover(context.Background(), backward)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "a", "b"}, c1.Sorted())
	assert.Equal(t, c1.Sorted(), c2.Sorted())
}

func TestAssemble(t *testing.T) {
	columns, rows, err := Assemble([]string{
		`{"a":[{"x":1},{"x":2}]}`,
		`{"tags":["a","b"],"a":[{"x":5}]}`,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.x", "a2.x", "tags"}, columns)
	require.Len(t, rows, 2)

	for _, row := range rows {
		assert.Len(t, row, len(columns))
		for _, col := range columns {
			assert.Contains(t, row, col)
		}
	}
	assert.Equal(t, "", rows[1]["a2.x"])
	assert.Equal(t, "a b", rows[1]["tags"])
	assert.Equal(t, "", rows[0]["tags"])
}

func TestAssembleLines(t *testing.T) {
	tests := []struct {
		description string
		lines       []string
		columns     []string
		rows        int
		errLine     int
	}{
		{
			description: "trailing blank line",
			lines:       []string{`{"a":1}`, ``},
			columns:     []string{"a"},
			rows:        1,
		},
		{
			description: "whitespace between records",
			lines:       []string{`{"a":1}`, "  \t", `{"b":2}`},
			columns:     []string{"a", "b"},
			rows:        2,
		},
		{
			description: "no records",
			lines:       []string{""},
			columns:     []string{},
		},
		{
			description: "malformed line after blank keeps its number",
			lines:       []string{`{}`, ``, `[`},
			errLine:     3,
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			columns, rows, err := Assemble(tc.lines)
			if tc.errLine > 0 {
				var lineErr *ndjson.LineError
				require.True(t, errors.As(err, &lineErr), "got %v", err)
				assert.Equal(t, tc.errLine, lineErr.Line)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.columns, columns)
			assert.Len(t, rows, tc.rows)
		})
	}
}
