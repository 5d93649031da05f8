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
	"regexp"
	"strconv"
	"strings"
)

var slurmJobIDRe = regexp.MustCompile(`Submitted batch job (\d+)`)

// Slurm launches jobs with srun (interactive) or sbatch (batch).
type Slurm struct {
	base
}

func NewSlurm(spec *JobSpec) *Slurm {
	return &Slurm{base: newBase(spec)}
}

func (*Slurm) Name() string {
	return "slurm"
}

// slurmTime formats minutes as D-HH:MM:SS.
func slurmTime(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	days, rem := minutes/(24*60), minutes%(24*60)
	return fmt.Sprintf("%d-%02d:%02d:00", days, rem/60, rem%60)
}

func (s *Slurm) BuildArguments(p Platform, _ bool) {
	s.reset(p, s)
	sp := s.spec

	if sp.Nodes > 0 {
		s.common.SetValue("--nodes", strconv.Itoa(sp.Nodes))
	}
	if sp.ProcsPerNode > 0 {
		s.common.SetValue("--ntasks-per-node", strconv.Itoa(sp.ProcsPerNode))
	}
	if sp.JobName != "" {
		s.common.SetValue("--job-name", sp.JobName)
	}
	if sp.Queue != "" {
		s.common.SetValue("--partition", sp.Queue)
	}
	if sp.Account != "" {
		s.common.SetValue("--account", sp.Account)
	}
	if sp.Reservation != "" {
		s.common.SetValue("--reservation", sp.Reservation)
	}
	if sp.TimeLimit > 0 {
		s.common.SetValue("--time", slurmTime(sp.TimeLimit))
	}
	if sp.WorkDir != "" {
		s.common.SetValue("--chdir", sp.WorkDir)
	}
	s.addLauncherFlags()

	s.runOnly.SetFlag("--unbuffered")
	if sp.GPUsPerProc > 0 {
		s.runOnly.SetValue("--gpus-per-task", strconv.Itoa(sp.GPUsPerProc))
	}
	export := []string{}
	if len(sp.LDPreloads) > 0 {
		export = append(export, "LD_PRELOAD="+strings.Join(sp.LDPreloads, ":"))
	}
	for _, v := range passthroughEnvironment(p) {
		export = append(export, v.Name+"="+v.Value)
	}
	if len(export) > 0 {
		s.runOnly.SetValue("--export", "ALL,"+strings.Join(export, ","))
	}

	if sp.OutLogFile != "" {
		s.submitOnly.SetValue("--output", sp.OutLogFile)
	}
	if sp.ErrLogFile != "" {
		s.submitOnly.SetValue("--error", sp.ErrLogFile)
	}
	if sp.GPUsPerProc > 0 {
		s.submitOnly.SetValue("--gpus-per-node", strconv.Itoa(sp.ProcsPerNode*sp.GPUsPerProc))
	}

	s.applyOverrides()
}

func (s *Slurm) LaunchCommand(p Platform, blocking bool) []string {
	s.BuildArguments(p, blocking)
	if !blocking {
		return []string{"sbatch"}
	}
	cmd := append([]string{"srun"}, s.common.Tokens("=")...)
	return append(cmd, s.runOnly.Tokens("=")...)
}

func (s *Slurm) LauncherScript(p Platform, command string, args []string, opts ScriptOptions) string {
	s.BuildArguments(p, opts.Blocking)

	sc := newScript()
	if !opts.Blocking {
		sc.lines(s.common.Directives("#SBATCH", "="))
		sc.lines(s.submitOnly.Directives("#SBATCH", "="))
	}
	sc.exports(environment(p))
	sc.hostlist(opts, "SLURM_PROCID", "scontrol show hostnames")
	if opts.Blocking {
		sc.run(nil, command, args)
	} else {
		sc.run(append([]string{"srun"}, s.runOnly.Tokens("=")...), command, args)
	}
	return sc.String()
}

func (*Slurm) JobID(output string) (string, bool) {
	m := slurmJobIDRe.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (s *Slurm) NumNodesInAllocation() (int, bool) {
	n, err := envInt(s.Name(), "SLURM_JOB_NUM_NODES")
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Slurm) ParallelConfiguration() (ParallelConfig, error) {
	v, err := envInts(s.Name(), "SLURM_NTASKS", "SLURM_PROCID", "SLURM_LOCALID")
	if err != nil {
		return ParallelConfig{}, err
	}
	perNode, err := envInt(s.Name(), "SLURM_NTASKS_PER_NODE")
	if err != nil {
		// Without --ntasks-per-node only SLURM_TASKS_PER_NODE is set, e.g. "2(x3)".
		var fallbackErr error
		if perNode, fallbackErr = envInt(s.Name(), "SLURM_TASKS_PER_NODE"); fallbackErr != nil {
			return ParallelConfig{}, err
		}
	}
	return ParallelConfig{WorldSize: v[0], Rank: v[1], LocalWorldSize: perNode, LocalRank: v[2]}, nil
}

func (s *Slurm) SetupRendezvousProtocol(protocol Protocol) ([]EnvVar, error) {
	return rendezvousEnv(s.Name(), protocol, staticAddr("$(scontrol show hostnames $SLURM_JOB_NODELIST | head -n 1)"))
}

func (s *Slurm) DynamicallyConfigureRendezvousProtocol(protocol Protocol) ([]EnvVar, error) {
	return dynamicRendezvousEnv(s.Name(), protocol, func() (string, error) {
		list, ok := os.LookupEnv("SLURM_JOB_NODELIST")
		if !ok {
			return "", &MissingEnvError{Scheduler: s.Name(), Name: "SLURM_JOB_NODELIST"}
		}
		return firstHost(list)
	})
}
