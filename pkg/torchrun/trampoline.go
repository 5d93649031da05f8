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

// Package torchrun bootstraps torchrun-hpc worker processes. Each worker
// recovers its rank from the scheduler environment, exports the variables
// PyTorch distributed expects and then replaces itself with the target.
package torchrun

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"hpc-launcher/pkg/logging"
	"hpc-launcher/pkg/schedulers"

	"golang.org/x/sys/unix"
)

// ErrNoCommand is returned when the trampoline is started without a target.
var ErrNoCommand = errors.New("trampoline requires a command to run")

// Variables read by torch.distributed.
const (
	EnvRank           = "RANK"
	EnvWorldSize      = "WORLD_SIZE"
	EnvLocalRank      = "LOCAL_RANK"
	EnvLocalWorldSize = "LOCAL_WORLD_SIZE"
	EnvMasterAddr     = "MASTER_ADDR"
	EnvMasterPort     = "MASTER_PORT"
)

// Plan is what the trampoline will exec.
type Plan struct {
	Path string
	Argv []string
	// Env is the complete environment of the new process image.
	Env []string
	// Bindings are the variables the trampoline added or replaced.
	Bindings []schedulers.EnvVar
}

// Trampoline prepares and starts one worker.
type Trampoline struct {
	Stdout io.Writer

	lookPath     func(file string) (string, error)
	exec         func(argv0 string, argv []string, envv []string) error
	mpiAvailable func() bool
}

func New() *Trampoline {
	return &Trampoline{
		Stdout:       os.Stdout,
		lookPath:     exec.LookPath,
		exec:         unix.Exec,
		mpiAvailable: schedulers.MPIAvailable,
	}
}

// Run bootstraps the worker and execs args. It only returns on failure.
func (t *Trampoline) Run(args []string) error {
	plan, err := t.Prepare(args)
	if err != nil {
		return err
	}
	logging.Debug("Executing %s", strings.Join(plan.Argv, " "))
	if err := t.exec(plan.Path, plan.Argv, plan.Env); err != nil {
		return fmt.Errorf("failed to exec %s: %w", plan.Path, err)
	}
	return nil
}

// Prepare computes the environment and command line of the worker.
func (t *Trampoline) Prepare(args []string) (Plan, error) {
	if len(args) == 0 {
		return Plan{}, ErrNoCommand
	}
	name := os.Getenv(schedulers.EnvScheduler)
	if name == "" {
		return Plan{}, &schedulers.MissingEnvError{Scheduler: "torchrun-hpc", Name: schedulers.EnvScheduler}
	}
	sch, err := schedulers.New(name, nil)
	if err != nil {
		return Plan{}, err
	}
	pc, err := sch.ParallelConfiguration()
	if err != nil {
		return Plan{}, err
	}

	bindings := []schedulers.EnvVar{
		{Name: EnvRank, Value: strconv.Itoa(pc.Rank)},
		{Name: EnvWorldSize, Value: strconv.Itoa(pc.WorldSize)},
		{Name: EnvLocalRank, Value: strconv.Itoa(pc.LocalRank)},
		{Name: EnvLocalWorldSize, Value: strconv.Itoa(pc.LocalWorldSize)},
	}
	rdv, err := t.rendezvous(sch)
	if err != nil {
		return Plan{}, err
	}
	bindings = append(bindings, rdv...)
	t.reportMemoryFraction(pc)

	argv := append([]string{}, args...)
	if strings.HasSuffix(args[0], ".py") {
		argv = append([]string{"python3", "-u"}, argv...)
	}
	path, err := t.lookPath(argv[0])
	if err != nil {
		return Plan{}, fmt.Errorf("failed to find %s: %w", argv[0], err)
	}
	return Plan{
		Path:     path,
		Argv:     argv,
		Env:      mergeEnv(os.Environ(), bindings),
		Bindings: bindings,
	}, nil
}

// rendezvous resolves the master address and port. Addresses that still hold
// an unexpanded shell expression are recomputed from the scheduler.
func (t *Trampoline) rendezvous(sch schedulers.Scheduler) ([]schedulers.EnvVar, error) {
	raw := os.Getenv(schedulers.EnvRDVProtocol)
	scheme := string(schedulers.ProtocolTCP)
	if raw != "" {
		scheme, _, _ = strings.Cut(raw, "://")
	}
	protocol, err := schedulers.ParseProtocol(scheme)
	if err != nil {
		return nil, &schedulers.UnsupportedProtocolError{Protocol: raw, Scheduler: sch.Name()}
	}
	if protocol == schedulers.ProtocolMPI {
		if !t.mpiAvailable() {
			return nil, schedulers.ErrMPIUnavailable
		}
		return nil, nil
	}

	addr := os.Getenv(schedulers.EnvMasterAddr)
	if addr == "" || strings.Contains(addr, "$") {
		dyn, err := sch.DynamicallyConfigureRendezvousProtocol(protocol)
		if err != nil {
			return nil, fmt.Errorf("failed to determine the rendezvous address: %w", err)
		}
		for _, v := range dyn {
			if v.Name == schedulers.EnvMasterAddr {
				addr = v.Value
			}
		}
	}
	port := os.Getenv(schedulers.EnvMasterPort)
	if port == "" {
		port = strconv.Itoa(schedulers.DefaultMasterPort)
	}
	return []schedulers.EnvVar{
		{Name: schedulers.EnvMasterAddr, Value: addr},
		{Name: schedulers.EnvMasterPort, Value: port},
		{Name: schedulers.EnvRDVProtocol, Value: fmt.Sprintf("tcp://%s:%s", addr, port)},
		{Name: EnvMasterAddr, Value: addr},
		{Name: EnvMasterPort, Value: port},
	}, nil
}

func (t *Trampoline) reportMemoryFraction(pc schedulers.ParallelConfig) {
	raw := os.Getenv(schedulers.EnvMaxGPUMem)
	if raw == "" || pc.Rank != 0 {
		return
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logging.Warn("Ignoring invalid %s=%q", schedulers.EnvMaxGPUMem, raw)
		return
	}
	if f != 1.0 {
		fmt.Fprintf(t.Stdout, "[Rank %d of %d] TORCHRUN-HPC set the max GPU memory fraction to %v\n", pc.Rank, pc.WorldSize, f)
	}
}

// mergeEnv replaces or appends bindings in a KEY=VALUE environment list.
func mergeEnv(environ []string, bindings []schedulers.EnvVar) []string {
	index := map[string]int{}
	out := make([]string, 0, len(environ)+len(bindings))
	for _, kv := range environ {
		k, _, _ := strings.Cut(kv, "=")
		if i, ok := index[k]; ok {
			out[i] = kv
			continue
		}
		index[k] = len(out)
		out = append(out, kv)
	}
	for _, b := range bindings {
		kv := b.Name + "=" + b.Value
		if i, ok := index[b.Name]; ok {
			out[i] = kv
			continue
		}
		index[b.Name] = len(out)
		out = append(out, kv)
	}
	return out
}
