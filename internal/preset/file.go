package preset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// File is the on-disk preset catalogue.
type File struct {
	Presets []Preset `json:"presets" yaml:"presets" toml:"presets"`
}

// Catalog is a validated, name-indexed set of presets.
type Catalog struct {
	byName map[string]Preset
}

// NewCatalog validates presets and indexes them by name. The built-in
// default is always present unless a preset overrides it.
func NewCatalog(presets ...Preset) (*Catalog, error) {
	c := &Catalog{byName: map[string]Preset{DefaultName: Default()}}
	for _, p := range presets {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		c.byName[p.Name] = p
	}
	return c, nil
}

// Get returns the preset with name.
func (c *Catalog) Get(name string) (Preset, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// Names returns preset names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.byName))
	for name := range c.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// List returns presets in name order.
func (c *Catalog) List() []Preset {
	names := c.Names()
	out := make([]Preset, 0, len(names))
	for _, name := range names {
		out = append(out, c.byName[name])
	}
	return out
}

// LoadFile reads a preset catalogue from YAML, TOML, or JSON chosen by
// extension. Relative frame paths resolve against the file's directory.
// A missing file yields a catalogue holding only the default.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewCatalog()
		}
		return nil, err
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported preset file extension %q", filepath.Ext(path))
	}

	base := filepath.Dir(path)
	for i := range f.Presets {
		fp := f.Presets[i].FramePath
		if fp != "" && !filepath.IsAbs(fp) && !strings.Contains(fp, "://") {
			f.Presets[i].FramePath = filepath.Join(base, fp)
		}
	}
	return NewCatalog(f.Presets...)
}
