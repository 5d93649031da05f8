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

package schedulers

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"hpc-launcher/pkg/logging"
	"hpc-launcher/pkg/shell"
)

// Flux launches jobs with flux run (interactive) or flux batch (batch).
type Flux struct {
	base
	warnedReservation bool
}

func NewFlux(spec *JobSpec) *Flux {
	return &Flux{base: newBase(spec)}
}

func (*Flux) Name() string {
	return "flux"
}

func (f *Flux) BuildArguments(p Platform, _ bool) {
	f.reset(p, f)
	sp := f.spec
	tasks := strconv.Itoa(sp.TotalProcs())

	if sp.Nodes > 0 {
		f.common.SetValue("--nodes", strconv.Itoa(sp.Nodes))
	}
	if sp.JobName != "" {
		f.common.SetValue("--job-name", sp.JobName)
	}
	if sp.Queue != "" {
		f.common.SetValue("--queue", sp.Queue)
	}
	if sp.Account != "" {
		f.common.SetValue("--bank", sp.Account)
	}
	if sp.TimeLimit > 0 {
		f.common.SetValue("--time-limit", fmt.Sprintf("%dm", sp.TimeLimit))
	}
	if sp.Reservation != "" && !f.warnedReservation {
		logging.Warn("Flux does not support reservations, ignoring reservation %q", sp.Reservation)
		f.warnedReservation = true
	}
	if sp.WorkDir != "" {
		f.common.SetValue("--setattr=system.cwd", sp.WorkDir)
	}
	f.addLauncherFlags()

	f.runOnly.SetFlag("--unbuffered")
	f.runOnly.SetValue("--ntasks", tasks)
	if sp.GPUsPerProc > 0 {
		f.runOnly.SetValue("--gpus-per-task", strconv.Itoa(sp.GPUsPerProc))
	}
	f.runOnly.SetFlag("--setopt=nosetpgrp")
	for _, v := range passthroughEnvironment(p) {
		f.runOnly.SetValue("--env="+v.Name, v.Value)
	}
	if len(sp.LDPreloads) > 0 {
		f.runOnly.SetValue("--env=LD_PRELOAD", strings.Join(sp.LDPreloads, ":"))
	}

	if sp.OutLogFile != "" {
		f.submitOnly.SetValue("--output", sp.OutLogFile)
	}
	if sp.ErrLogFile != "" {
		f.submitOnly.SetValue("--error", sp.ErrLogFile)
	}
	f.submitOnly.SetValue("--nslots", tasks)
	if sp.GPUsPerProc > 0 {
		f.submitOnly.SetValue("--gpus-per-slot", strconv.Itoa(sp.GPUsPerProc))
	}

	f.applyOverrides()
}

func (f *Flux) LaunchCommand(p Platform, blocking bool) []string {
	f.BuildArguments(p, blocking)
	if !blocking {
		return []string{"flux", "batch"}
	}
	cmd := append([]string{"flux", "run"}, f.common.Tokens("=")...)
	return append(cmd, f.runOnly.Tokens("=")...)
}

func (f *Flux) LauncherScript(p Platform, command string, args []string, opts ScriptOptions) string {
	f.BuildArguments(p, opts.Blocking)

	sc := newScript()
	if !opts.Blocking {
		sc.lines(f.common.Directives("# flux:", "="))
		sc.lines(f.submitOnly.Directives("# flux:", "="))
	}
	sc.exports(environment(p))
	sc.hostlist(opts, "FLUX_TASK_RANK", "flux hostlist local")
	if opts.Blocking {
		sc.run(nil, command, args)
	} else {
		step := []string{"flux", "run"}
		if v, ok := f.common.Get("--nodes"); ok && v != nil {
			step = append(step, "--nodes="+*v)
		}
		sc.run(append(step, f.runOnly.Tokens("=")...), command, args)
	}
	return sc.String()
}

// JobID accepts the single token printed by flux batch.
func (*Flux) JobID(output string) (string, bool) {
	fields := strings.Fields(output)
	if len(fields) != 1 {
		return "", false
	}
	return fields[0], true
}

func (*Flux) NumNodesInAllocation() (int, bool) {
	if _, ok := os.LookupEnv("FLUX_URI"); !ok {
		return 0, false
	}
	res := shell.ExecuteCommand("flux", "resource", "info")
	if res.ExitCode != 0 {
		logging.Debug("flux resource info failed: %s", res.Stderr)
		return 0, false
	}
	// e.g. "2 Nodes, 192 Cores, 16 GPUs"
	n, err := leadingInt(res.Stdout)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (f *Flux) ParallelConfiguration() (ParallelConfig, error) {
	v, err := envInts(f.Name(), "FLUX_JOB_SIZE", "FLUX_TASK_RANK", "FLUX_JOB_NNODES", "FLUX_TASK_LOCAL_ID")
	if err != nil {
		return ParallelConfig{}, err
	}
	size, nnodes := v[0], v[2]
	if nnodes <= 0 {
		return ParallelConfig{}, fmt.Errorf("invalid FLUX_JOB_NNODES=%d", nnodes)
	}
	return ParallelConfig{WorldSize: size, Rank: v[1], LocalWorldSize: size / nnodes, LocalRank: v[3]}, nil
}

func (f *Flux) SetupRendezvousProtocol(protocol Protocol) ([]EnvVar, error) {
	return rendezvousEnv(f.Name(), protocol, staticAddr("$(flux hostlist local | /bin/hostlist -n 1)"))
}

func (f *Flux) DynamicallyConfigureRendezvousProtocol(protocol Protocol) ([]EnvVar, error) {
	return dynamicRendezvousEnv(f.Name(), protocol, func() (string, error) {
		res := shell.ExecuteCommand("flux", "hostlist", "local")
		if res.ExitCode != 0 {
			return "", fmt.Errorf("failed to query flux host list: %s", strings.TrimSpace(res.Stderr))
		}
		return firstHost(strings.TrimSpace(res.Stdout))
	})
}
