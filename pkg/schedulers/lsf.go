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

var lsfJobIDRe = regexp.MustCompile(`Job <(\d+)> is submitted`)

// LSF launches jobs with bsub and runs the parallel step with jsrun.
type LSF struct {
	base
}

func NewLSF(spec *JobSpec) *LSF {
	return &LSF{base: newBase(spec)}
}

func (*LSF) Name() string {
	return "lsf"
}

// lsfTime formats minutes as H:MM.
func lsfTime(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

// BuildArguments fills the bsub buckets. The run-only bucket holds the jsrun
// arguments, which use "=" while bsub uses a space.
func (l *LSF) BuildArguments(p Platform, _ bool) {
	l.reset(p, l)
	sp := l.spec

	if sp.Nodes > 0 {
		l.common.SetValue("-nnodes", strconv.Itoa(sp.Nodes))
	}
	if sp.JobName != "" {
		l.common.SetValue("-J", sp.JobName)
	}
	if sp.Queue != "" {
		l.common.SetValue("-q", sp.Queue)
	}
	if sp.Account != "" {
		l.common.SetValue("-G", sp.Account)
	}
	if sp.TimeLimit > 0 {
		l.common.SetValue("-W", lsfTime(sp.TimeLimit))
	}
	if sp.Reservation != "" {
		l.common.SetValue("-U", sp.Reservation)
	}
	if sp.WorkDir != "" {
		l.common.SetValue("-cwd", sp.WorkDir)
	}
	if sp.GPUsPerProc > 0 {
		l.common.SetValue("-gpu", fmt.Sprintf("num=%d", sp.ProcsPerNode*sp.GPUsPerProc))
	}
	l.addLauncherFlags()

	l.runOnly.SetValue("--nrs", strconv.Itoa(sp.Nodes))
	l.runOnly.SetValue("--rs_per_host", "1")
	l.runOnly.SetValue("--tasks_per_rs", strconv.Itoa(sp.ProcsPerNode))
	l.runOnly.SetValue("--launch_distribution", "packed")
	l.runOnly.SetValue("--cpu_per_rs", "ALL_CPUS")
	if sp.GPUsPerProc > 0 {
		l.runOnly.SetValue("--gpu_per_rs", strconv.Itoa(sp.ProcsPerNode*sp.GPUsPerProc))
	}

	if sp.OutLogFile != "" {
		l.submitOnly.SetValue("-o", sp.OutLogFile)
	}
	if sp.ErrLogFile != "" {
		l.submitOnly.SetValue("-e", sp.ErrLogFile)
	}

	l.applyOverrides()
}

func (l *LSF) LaunchCommand(p Platform, blocking bool) []string {
	l.BuildArguments(p, blocking)
	if blocking {
		return append([]string{"bsub", "-Is"}, l.common.Tokens(" ")...)
	}
	cmd := append([]string{"bsub"}, l.common.Tokens(" ")...)
	return append(cmd, l.submitOnly.Tokens(" ")...)
}

// LauncherScript always runs the command through jsrun. bsub cannot forward
// environment variables, so passthrough variables are exported in the script.
func (l *LSF) LauncherScript(p Platform, command string, args []string, opts ScriptOptions) string {
	l.BuildArguments(p, opts.Blocking)

	sc := newScript()
	if !opts.Blocking {
		sc.lines(l.common.Directives("#BSUB", " "))
		sc.lines(l.submitOnly.Directives("#BSUB", " "))
	}
	sc.exports(environment(p))
	sc.exports(passthroughEnvironment(p))
	if len(l.spec.LDPreloads) > 0 {
		sc.exports([]EnvVar{{Name: "LD_PRELOAD", Value: strings.Join(l.spec.LDPreloads, ":")}})
	}
	sc.hostlist(opts, "OMPI_COMM_WORLD_RANK", "echo $LSB_HOSTS")
	sc.run(append([]string{"jsrun"}, l.runOnly.Tokens("=")...), command, args)
	return sc.String()
}

func (*LSF) JobID(output string) (string, bool) {
	m := lsfJobIDRe.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// NumNodesInAllocation counts the host/slot pairs of LSB_MCPU_HOSTS, not
// counting the launch node.
func (*LSF) NumNodesInAllocation() (int, bool) {
	raw, ok := os.LookupEnv("LSB_MCPU_HOSTS")
	if !ok {
		return 0, false
	}
	n := len(strings.Fields(raw)) / 2
	if n == 0 {
		return 0, false
	}
	if n > 1 {
		n--
	}
	return n, true
}

func (l *LSF) ParallelConfiguration() (ParallelConfig, error) {
	v, err := envInts(l.Name(),
		"OMPI_COMM_WORLD_SIZE", "OMPI_COMM_WORLD_RANK",
		"OMPI_COMM_WORLD_LOCAL_SIZE", "OMPI_COMM_WORLD_LOCAL_RANK")
	if err != nil {
		return ParallelConfig{}, err
	}
	return ParallelConfig{WorldSize: v[0], Rank: v[1], LocalWorldSize: v[2], LocalRank: v[3]}, nil
}

func (l *LSF) SetupRendezvousProtocol(protocol Protocol) ([]EnvVar, error) {
	return rendezvousEnv(l.Name(), protocol,
		staticAddr("$(echo $LSB_HOSTS | tr ' ' '\\n' | uniq | sed -n '2p;$p' | head -n 1)"))
}

func (l *LSF) DynamicallyConfigureRendezvousProtocol(protocol Protocol) ([]EnvVar, error) {
	return dynamicRendezvousEnv(l.Name(), protocol, func() (string, error) {
		raw, ok := os.LookupEnv("LSB_HOSTS")
		if !ok {
			return "", &MissingEnvError{Scheduler: l.Name(), Name: "LSB_HOSTS"}
		}
		return lsfMasterHost(raw)
	})
}

// lsfMasterHost returns the first compute host of LSB_HOSTS, skipping the
// launch node that comes first when there is more than one host.
func lsfMasterHost(lsbHosts string) (string, error) {
	var hosts []string
	for _, h := range strings.Fields(lsbHosts) {
		if len(hosts) == 0 || hosts[len(hosts)-1] != h {
			hosts = append(hosts, h)
		}
	}
	switch len(hosts) {
	case 0:
		return "", fmt.Errorf("empty LSB_HOSTS")
	case 1:
		return hosts[0], nil
	}
	return hosts[1], nil
}
