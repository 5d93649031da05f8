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
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SystemParams describes the hardware of one queue of a system.
type SystemParams struct {
	CoresPerNode int    `yaml:"cores_per_node"`
	GPUsPerNode  int    `yaml:"gpus_per_node"`
	GPUArch      string `yaml:"gpu_arch,omitempty"`
	// MemPerGPU is in GB.
	MemPerGPU   float64 `yaml:"mem_per_gpu"`
	CPUsPerNode int     `yaml:"cpus_per_node,omitempty"`
	NUMADomains int     `yaml:"numa_domains"`
	Scheduler   string  `yaml:"scheduler"`
	// FractionMaxGPUMem limits the share of GPU memory a process may use.
	FractionMaxGPUMem float64 `yaml:"fraction_max_gpu_mem,omitempty"`
}

func (p SystemParams) HasGPU() bool {
	return p.GPUsPerNode > 0
}

// DefaultProcsPerNode is one process per GPU, or one per NUMA domain on
// CPU-only nodes.
func (p SystemParams) DefaultProcsPerNode() int {
	if p.HasGPU() {
		return p.GPUsPerNode
	}
	return p.NUMADomains
}

func (p SystemParams) withDefaults() SystemParams {
	if p.FractionMaxGPUMem == 0 {
		p.FractionMaxGPUMem = 1.0
	}
	return p
}

func (p SystemParams) String() string {
	return fmt.Sprintf("cores=%d gpus=%d arch=%s mem=%gGB numa=%d scheduler=%s",
		p.CoresPerNode, p.GPUsPerNode, p.GPUArch, p.MemPerGPU, p.NUMADomains, p.Scheduler)
}

// ParamOverrides are system parameters given on the command line as
// key=value pairs, where keys are the YAML field names of SystemParams.
type ParamOverrides struct {
	doc []byte
}

// ParseParamOverrides validates key=value pairs against SystemParams.
func ParseParamOverrides(items []string) (ParamOverrides, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode}
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return ParamOverrides{}, fmt.Errorf("invalid system parameter %q, expected key=value", item)
		}
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: strings.TrimSpace(key)},
			&yaml.Node{Kind: yaml.ScalarNode, Value: strings.TrimSpace(value)})
	}
	if len(mapping.Content) == 0 {
		return ParamOverrides{}, nil
	}
	doc, err := yaml.Marshal(mapping)
	if err != nil {
		return ParamOverrides{}, fmt.Errorf("failed to encode system parameters: %w", err)
	}
	o := ParamOverrides{doc: doc}
	if _, err := o.apply(SystemParams{}); err != nil {
		return ParamOverrides{}, err
	}
	return o, nil
}

func (o ParamOverrides) Empty() bool {
	return len(o.doc) == 0
}

// Apply returns p with the overrides applied on top.
func (o ParamOverrides) Apply(p SystemParams) SystemParams {
	// Overrides were validated by ParseParamOverrides.
	out, _ := o.apply(p)
	return out
}

func (o ParamOverrides) apply(p SystemParams) (SystemParams, error) {
	if o.Empty() {
		return p, nil
	}
	dec := yaml.NewDecoder(strings.NewReader(string(o.doc)))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("invalid system parameters: %w", err)
	}
	return p, nil
}
