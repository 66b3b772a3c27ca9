// Package presets loads named addresses offered in the planner's selection list.
package presets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Preset is a named address.
type Preset struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Label is what the selection list shows.
func (p Preset) Label() string {
	if p.Name == "" || p.Name == p.Address {
		return p.Address
	}
	return p.Name + " (" + p.Address + ")"
}

type file struct {
	Presets []Preset `yaml:"presets"`
}

// Load reads a YAML file of the form:
//
//	presets:
//	  - name: Office
//	    address: 1 Infinite Loop, Cupertino
//
// A missing file yields no presets.
func Load(path string) ([]Preset, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("presets: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes preset YAML, dropping entries without an address and
// duplicate addresses.
func Parse(raw []byte) ([]Preset, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("presets: parse: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Presets))
	out := make([]Preset, 0, len(f.Presets))
	for _, p := range f.Presets {
		p.Name = strings.TrimSpace(p.Name)
		p.Address = strings.TrimSpace(p.Address)
		if p.Address == "" {
			continue
		}
		if _, dup := seen[p.Address]; dup {
			continue
		}
		seen[p.Address] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
