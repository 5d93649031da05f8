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

// Package schedulers translates a resolved resource plan into command lines
// and batch scripts for the supported job schedulers.
package schedulers

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"
)

// EnvVar is a single environment binding written into launch scripts.
type EnvVar struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Platform is the view of a system that a scheduler needs while building
// its arguments.
type Platform interface {
	EnvironmentVariables() []EnvVar
	PassthroughEnvironmentVariables() []EnvVar
	// CustomizeScheduler may adjust the job spec of s, e.g. add launcher flags.
	CustomizeScheduler(s Scheduler)
}

// JobSpec holds the resource plan and submission metadata of one launch.
type JobSpec struct {
	Nodes        int
	ProcsPerNode int
	GPUsPerProc  int

	JobName    string
	WorkDir    string
	OutLogFile string
	ErrLogFile string
	// TimeLimit is in minutes; zero means no limit.
	TimeLimit   int
	Queue       string
	Account     string
	Reservation string

	LauncherFlags []string
	LDPreloads    []string

	// OverrideLaunchArgs are applied after all defaults and system customization.
	OverrideLaunchArgs *Args
}

// AddLauncherFlag appends flag unless it is already present.
func (s *JobSpec) AddLauncherFlag(flag string) {
	for _, f := range s.LauncherFlags {
		if f == flag {
			return
		}
	}
	s.LauncherFlags = append(s.LauncherFlags, flag)
}

// TotalProcs is the number of ranks of the job.
func (s *JobSpec) TotalProcs() int {
	return s.Nodes * s.ProcsPerNode
}

// ScriptOptions controls rendering of a launcher script.
type ScriptOptions struct {
	// Blocking renders an interactive script; otherwise a batch script with
	// header directives and an in-script parallel step.
	Blocking bool
	// SaveHostlist writes the allocated hosts to HostlistDir/HostlistFile on rank zero.
	SaveHostlist bool
	HostlistDir  string
}

// HostlistFile is the name of the file written when the host list is saved.
const HostlistFile = "hpc_launcher_hostlist.txt"

// ParallelConfig describes the position of the current process in a job.
type ParallelConfig struct {
	WorldSize      int
	Rank           int
	LocalWorldSize int
	LocalRank      int
}

// Scheduler produces the command line and batch script of one launch.
type Scheduler interface {
	Name() string
	Spec() *JobSpec

	// BuildArguments rebuilds the argument buckets from the job spec.
	BuildArguments(p Platform, blocking bool)
	// LaunchCommand returns the command prefix that runs the launcher script.
	LaunchCommand(p Platform, blocking bool) []string
	LauncherScript(p Platform, command string, args []string, opts ScriptOptions) string

	// JobID parses the output of a batch submission.
	JobID(output string) (string, bool)
	// NumNodesInAllocation reports the size of the allocation the current
	// process runs in, if any.
	NumNodesInAllocation() (int, bool)
	ParallelConfiguration() (ParallelConfig, error)

	SetupRendezvousProtocol(protocol Protocol) ([]EnvVar, error)
	DynamicallyConfigureRendezvousProtocol(protocol Protocol) ([]EnvVar, error)
}

// ErrUnknownScheduler is returned by New for names outside the registry.
var ErrUnknownScheduler = errors.New("unknown scheduler")

var registry = map[string]func(*JobSpec) Scheduler{
	"local": func(s *JobSpec) Scheduler { return NewLocal(s) },
	"flux":  func(s *JobSpec) Scheduler { return NewFlux(s) },
	"slurm": func(s *JobSpec) Scheduler { return NewSlurm(s) },
	"lsf":   func(s *JobSpec) Scheduler { return NewLSF(s) },
}

var aliases = map[string]string{
	"localscheduler": "local",
	"fluxscheduler":  "flux",
	"slurmscheduler": "slurm",
	"lsfscheduler":   "lsf",
}

// Names lists the registered scheduler names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Canonical maps a scheduler name or alias to its registered name.
func Canonical(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[n]; ok {
		n = a
	}
	if _, ok := registry[n]; !ok {
		return "", fmt.Errorf("%w %q, expected one of %s", ErrUnknownScheduler, name, strings.Join(Names(), ", "))
	}
	return n, nil
}

// New returns the scheduler registered under name. A nil spec is replaced
// by an empty one.
func New(name string, spec *JobSpec) (Scheduler, error) {
	n, err := Canonical(name)
	if err != nil {
		return nil, err
	}
	if spec == nil {
		spec = &JobSpec{}
	}
	return registry[n](spec), nil
}

// base carries the state shared by all schedulers.
type base struct {
	spec       *JobSpec
	common     *Args
	runOnly    *Args
	submitOnly *Args
}

func newBase(spec *JobSpec) base {
	if spec == nil {
		spec = &JobSpec{}
	}
	return base{spec: spec, common: NewArgs(), runOnly: NewArgs(), submitOnly: NewArgs()}
}

func (b *base) Spec() *JobSpec {
	return b.spec
}

// reset empties the buckets and lets the platform customize the job spec.
func (b *base) reset(p Platform, s Scheduler) {
	b.common, b.runOnly, b.submitOnly = NewArgs(), NewArgs(), NewArgs()
	if p != nil {
		p.CustomizeScheduler(s)
	}
}

func (b *base) addLauncherFlags() {
	for _, f := range b.spec.LauncherFlags {
		k, v := ParseOverride(f)
		b.common.Set(k, v)
	}
}

func (b *base) applyOverrides() {
	applyOverrides(b.spec.OverrideLaunchArgs, b.common, b.runOnly, b.submitOnly)
}

func environment(p Platform) []EnvVar {
	if p == nil {
		return nil
	}
	return p.EnvironmentVariables()
}

func passthroughEnvironment(p Platform) []EnvVar {
	if p == nil {
		return nil
	}
	return p.PassthroughEnvironmentVariables()
}

// script accumulates the sections of a launcher script.
type script struct {
	sb strings.Builder
}

func newScript() *script {
	s := &script{}
	s.sb.WriteString("#!/bin/sh\n")
	return s
}

func (s *script) lines(lines []string) {
	for _, l := range lines {
		s.sb.WriteString(l)
		s.sb.WriteByte('\n')
	}
}

func (s *script) exports(vars []EnvVar) {
	for _, v := range vars {
		fmt.Fprintf(&s.sb, "export %s=%s\n", v.Name, v.Value)
	}
}

// hostlist writes the host list to a file, guarded so that only rank zero
// does it.
func (s *script) hostlist(opts ScriptOptions, rankVar, listCmd string) {
	s.sb.WriteString(hostlistSnippet(opts, rankVar, listCmd))
}

func (s *script) run(prefix []string, command string, args []string) {
	s.sb.WriteString(commandLine(prefix, command, args))
	s.sb.WriteByte('\n')
}

func (s *script) String() string {
	return s.sb.String()
}

func hostlistSnippet(opts ScriptOptions, rankVar, listCmd string) string {
	if !opts.SaveHostlist {
		return ""
	}
	path := HostlistFile
	if opts.HostlistDir != "" {
		path = strings.TrimSuffix(opts.HostlistDir, "/") + "/" + HostlistFile
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "if [ \"${%s:-0}\" = \"0\" ]; then\n", rankVar)
	fmt.Fprintf(&sb, "  echo $(%s) | tr -d '\\n' > %s\n", listCmd, shellquote.Join(path))
	sb.WriteString("fi\n")
	return sb.String()
}

// commandLine joins the parallel step prefix, the command and its arguments.
// The command string is kept verbatim so it may carry shell syntax; prefix
// and arguments are quoted.
func commandLine(prefix []string, command string, args []string) string {
	var parts []string
	if len(prefix) > 0 {
		parts = append(parts, shellquote.Join(prefix...))
	}
	parts = append(parts, command)
	if len(args) > 0 {
		parts = append(parts, shellquote.Join(args...))
	}
	return strings.Join(parts, " ")
}
