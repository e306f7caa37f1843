// Package verify checks that a database schema contains the tables, columns
// and functions listed in a manifest.
package verify

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidManifest is returned for manifests that parse but make no sense
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest lists the schema objects a deployment depends on
type Manifest struct {
	Schema    string          `yaml:"schema"`
	Tables    []TableManifest `yaml:"tables"`
	Functions []string        `yaml:"functions"`
}

// TableManifest is a table and the columns the application reads or writes
type TableManifest struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// LoadManifest reads a YAML manifest from path
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a YAML manifest. Unknown fields are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Schema == "" {
		m.Schema = "public"
	}
	return &m, nil
}

// Validate checks the manifest for empty and duplicate names
func (m *Manifest) Validate() error {
	if len(m.Tables) == 0 && len(m.Functions) == 0 {
		return fmt.Errorf("%w: no tables or functions listed", ErrInvalidManifest)
	}
	seen := make(map[string]bool)
	for i, t := range m.Tables {
		if t.Name == "" {
			return fmt.Errorf("%w: tables[%d].name is required", ErrInvalidManifest, i)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate table %s", ErrInvalidManifest, t.Name)
		}
		seen[t.Name] = true
	}
	for i, fn := range m.Functions {
		if fn == "" {
			return fmt.Errorf("%w: functions[%d] is empty", ErrInvalidManifest, i)
		}
	}
	return nil
}
