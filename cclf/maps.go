package cclf

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// ErrUnknownMap is returned by Lookup for names without a layout.
var ErrUnknownMap = errors.New("unknown CCLF file")

//go:embed maps/fhir3.yaml
var fhir3Maps []byte

type mapEntry struct {
	Column string `yaml:"column"`
	Source string `yaml:"source"`
}

var registry = mustLoadRegistry()

func mustLoadRegistry() map[string]ColumnMap {
	maps, err := LoadMaps(fhir3Maps)
	if err != nil {
		panic(fmt.Sprintf("embedded CCLF maps: %v", err))
	}
	cclf8 := CCLF8()
	maps[cclf8.Name] = cclf8
	return maps
}

// LoadMaps parses a YAML document of column layouts keyed by file name. Each
// column's source note is compiled with ParseSource.
func LoadMaps(data []byte) (map[string]ColumnMap, error) {
	var raw map[string][]mapEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse CCLF maps: %w", err)
	}

	maps := make(map[string]ColumnMap, len(raw))
	for name, entries := range raw {
		m := ColumnMap{Name: strings.ToUpper(name)}
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			if e.Column == "" {
				return nil, fmt.Errorf("%s: entry without column name", name)
			}
			if seen[e.Column] {
				return nil, fmt.Errorf("%s: duplicate column %s", name, e.Column)
			}
			seen[e.Column] = true
			m.Columns = append(m.Columns, Column{Name: e.Column, Accessor: ParseSource(e.Source)})
		}
		maps[m.Name] = m
	}
	return maps, nil
}

// Lookup returns the layout for a CCLF file name such as "cclf8".
func Lookup(name string) (ColumnMap, error) {
	m, ok := registry[strings.ToUpper(name)]
	if !ok {
		return ColumnMap{}, fmt.Errorf("%w: %s", ErrUnknownMap, name)
	}
	return m, nil
}

// Names lists every known CCLF file in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
