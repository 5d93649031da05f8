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

// Package systems describes the known HPC systems, their hardware per queue
// and their preferred environment, and resolves resource requests against them.
package systems

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"hpc-launcher/pkg/logging"
	"hpc-launcher/pkg/schedulers"
)

// Family selects the environment tuning and scheduler customization of a system.
type Family string

const (
	FamilyGeneric   Family = "generic"
	FamilyElCapitan Family = "el-capitan"
	FamilyCTS2      Family = "cts2"
	FamilySierra    Family = "sierra"
)

// System is one physical machine that jobs can be launched on.
type System struct {
	Name         string
	Family       Family
	DefaultQueue string
	Queues       map[string]SystemParams

	env         []schedulers.EnvVar
	passthrough []schedulers.EnvVar
	auxEnv      []schedulers.EnvVar

	getenv   func(string) string
	lookPath func(string) (string, error)
}

// NewSystem builds a system from its catalog entry.
func NewSystem(name string, cfg SystemConfig) *System {
	s := &System{
		Name:         name,
		Family:       cfg.Family,
		DefaultQueue: cfg.DefaultQueue,
		Queues:       map[string]SystemParams{},
		env:          append([]schedulers.EnvVar(nil), cfg.Env...),
		passthrough:  append([]schedulers.EnvVar(nil), cfg.PassthroughEnv...),
		getenv:       os.Getenv,
		lookPath:     exec.LookPath,
	}
	if s.Family == "" {
		s.Family = FamilyGeneric
	}
	for q, p := range cfg.Queues {
		s.Queues[q] = p.withDefaults()
	}
	return s
}

// Generic returns a system without known hardware parameters.
func Generic(name string) *System {
	return NewSystem(name, SystemConfig{Family: FamilyGeneric})
}

// QueueNames lists the queues with known parameters.
func (s *System) QueueNames() []string {
	names := make([]string, 0, len(s.Queues))
	for q := range s.Queues {
		names = append(names, q)
	}
	sort.Strings(names)
	return names
}

// Params returns the parameters of queue, falling back to the default queue
// with a warning when queue is unknown. ok is false when the system has no
// known parameters at all.
func (s *System) Params(queue string) (params SystemParams, used string, ok bool) {
	if len(s.Queues) == 0 {
		return SystemParams{}, queue, false
	}
	if queue == "" {
		queue = s.DefaultQueue
	}
	if p, found := s.Queues[queue]; found {
		return p, queue, true
	}
	logging.Warn("Unknown queue %s on system %s, using system parameters from default queue %s",
		queue, s.Name, s.DefaultQueue)
	p, found := s.Queues[s.DefaultQueue]
	return p, s.DefaultQueue, found
}

// ExtendEnvironmentVariables adds bindings that are exported after the
// system's own tuning variables.
func (s *System) ExtendEnvironmentVariables(vars ...schedulers.EnvVar) {
	s.auxEnv = append(s.auxEnv, vars...)
}

// EnvironmentVariables returns the family tuning variables, then the catalog
// variables, then any added with ExtendEnvironmentVariables.
func (s *System) EnvironmentVariables() []schedulers.EnvVar {
	var out []schedulers.EnvVar
	switch s.Family {
	case FamilyElCapitan:
		out = s.elCapitanEnvironment()
	case FamilyCTS2:
		out = openMPEnvironment("21")
		out = append([]schedulers.EnvVar{{Name: "MPICH_OFI_NIC_POLICY", Value: "GPU"}}, out...)
	case FamilySierra:
		out = openMPEnvironment("10")
	}
	out = append(out, s.env...)
	return append(out, s.auxEnv...)
}

func openMPEnvironment(threads string) []schedulers.EnvVar {
	return []schedulers.EnvVar{
		{Name: "OMP_NUM_THREADS", Value: threads},
		{Name: "OMP_PLACES", Value: "threads"},
		{Name: "OMP_PROC_BIND", Value: "spread"},
	}
}

func (s *System) elCapitanEnvironment() []schedulers.EnvVar {
	tmp := s.getenv("TMPDIR")
	if tmp == "" {
		tmp = os.TempDir()
	}
	out := []schedulers.EnvVar{
		{Name: "NCCL_NET_GDR_LEVEL", Value: "3"},
		{Name: "NCCL_MIN_NCHANNELS", Value: "24"},
		{Name: "MIOPEN_DEBUG_DISABLE_FIND_DB", Value: "0"},
		{Name: "MIOPEN_DISABLE_CACHE", Value: "0"},
		{Name: "MIOPEN_USER_DB_PATH", Value: tmp + "/MIOpen_user_db"},
		{Name: "MIOPEN_CUSTOM_CACHE_DIR", Value: tmp + "/MIOpen_custom_cache"},
	}
	if v := s.getenv("CRAY_LD_LIBRARY_PATH"); v != "" {
		out = append(out, schedulers.EnvVar{Name: "LD_LIBRARY_PATH", Value: v + ":${LD_LIBRARY_PATH}"})
	}
	if v := s.getenv("ROCM_PATH"); v != "" {
		out = append(out, schedulers.EnvVar{Name: "LD_LIBRARY_PATH", Value: filepath.Join(v, "llvm", "lib") + ":${LD_LIBRARY_PATH}"})
	}
	if v := s.getenv("LBANN_USE_THIS_OFI_PLUGIN"); v != "" {
		out = append(out, schedulers.EnvVar{Name: "LD_LIBRARY_PATH", Value: v + ":${LD_LIBRARY_PATH}"})
	}
	out = append(out, schedulers.EnvVar{Name: "MPICH_OFI_NIC_POLICY", Value: "GPU"})
	out = append(out, openMPEnvironment("21")...)
	// Slingshot Cassini NIC tuning.
	return append(out, schedulers.EnvVar{Name: "FI_CXI_RDZV_PROTO", Value: "alt_read"})
}

func (s *System) PassthroughEnvironmentVariables() []schedulers.EnvVar {
	return append([]schedulers.EnvVar(nil), s.passthrough...)
}

// CustomizeScheduler requests exclusive nodes from Flux and Slurm on LC
// clusters and preloads the RCCL library named by LBANN_USE_THIS_RCCL.
func (s *System) CustomizeScheduler(sch schedulers.Scheduler) {
	if s.Family != FamilyElCapitan && s.Family != FamilyCTS2 {
		return
	}
	spec := sch.Spec()
	if sch.Name() == "flux" || sch.Name() == "slurm" {
		spec.AddLauncherFlag("--exclusive")
	}
	if s.Family == FamilyElCapitan && sch.Name() == "flux" {
		spec.AddLauncherFlag("--setattr=rdzv_get_en=0")
	}
	if rccl := s.getenv("LBANN_USE_THIS_RCCL"); rccl != "" {
		spec.LDPreloads = []string{rccl}
	}
}

// PreferredScheduler names the scheduler used when none is requested. Systems
// without known parameters pick the first scheduler found on PATH.
func (s *System) PreferredScheduler() string {
	if p, ok := s.Queues[s.DefaultQueue]; ok && p.Scheduler != "" {
		return p.Scheduler
	}
	for _, c := range []struct{ bin, name string }{{"flux", "flux"}, {"sbatch", "slurm"}, {"bsub", "lsf"}} {
		if _, err := s.lookPath(c.bin); err == nil {
			return c.name
		}
	}
	return "local"
}
