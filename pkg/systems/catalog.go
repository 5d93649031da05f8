// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package systems

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"

	"hpc-launcher/pkg/schedulers"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// SystemConfig is the catalog entry of one system.
type SystemConfig struct {
	Family         Family                  `yaml:"family"`
	DefaultQueue   string                  `yaml:"default_queue"`
	Queues         map[string]SystemParams `yaml:"queues"`
	Env            []schedulers.EnvVar     `yaml:"env,omitempty"`
	PassthroughEnv []schedulers.EnvVar     `yaml:"passthrough_env,omitempty"`
}

// Catalog maps system names to their configuration. Nodes holds shared node
// types that queues refer to through YAML anchors.
type Catalog struct {
	Nodes   map[string]SystemParams `yaml:"nodes,omitempty"`
	Systems map[string]SystemConfig `yaml:"systems"`
}

// ParseCatalog decodes a catalog, rejecting unknown fields.
func ParseCatalog(data []byte) (*Catalog, error) {
	c := &Catalog{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, errors.Wrap(err, "failed to decode system catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(embeddedCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in system catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog returns the built-in catalog merged with the catalog file at
// path, if any. Entries of the file replace built-in systems of the same name.
func LoadCatalog(fs afero.Fs, path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to expand catalog path %s", path)
	}
	data, err := afero.ReadFile(fs, expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read system catalog %s", expanded)
	}
	user, err := ParseCatalog(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid system catalog %s", expanded)
	}
	c.Merge(user)
	return c, nil
}

// Merge adds the systems of other, replacing those with the same name.
func (c *Catalog) Merge(other *Catalog) {
	if c.Systems == nil {
		c.Systems = map[string]SystemConfig{}
	}
	for name, cfg := range other.Systems {
		c.Systems[name] = cfg
	}
}

// Validate checks that every system names a known family, a default queue
// among its queues and registered schedulers.
func (c *Catalog) Validate() error {
	for _, name := range c.Names() {
		cfg := c.Systems[name]
		switch cfg.Family {
		case "", FamilyGeneric, FamilyElCapitan, FamilyCTS2, FamilySierra:
		default:
			return errors.Errorf("system %s: unknown family %q", name, cfg.Family)
		}
		if len(cfg.Queues) == 0 {
			continue
		}
		if _, ok := cfg.Queues[cfg.DefaultQueue]; !ok {
			return errors.Errorf("system %s: default queue %q has no parameters", name, cfg.DefaultQueue)
		}
		for q, p := range cfg.Queues {
			if p.Scheduler == "" {
				continue
			}
			if _, err := schedulers.Canonical(p.Scheduler); err != nil {
				return errors.Wrapf(err, "system %s queue %s", name, q)
			}
		}
	}
	return nil
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Systems))
	for n := range c.Systems {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// System builds a fresh System for name.
func (c *Catalog) System(name string) (*System, bool) {
	cfg, ok := c.Systems[name]
	if !ok {
		return nil, false
	}
	return NewSystem(name, cfg), true
}

// YAML renders the systems of the catalog.
func (c *Catalog) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]map[string]SystemConfig{"systems": c.Systems}); err != nil {
		return nil, errors.Wrap(err, "failed to encode system catalog")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to encode system catalog")
	}
	return buf.Bytes(), nil
}
