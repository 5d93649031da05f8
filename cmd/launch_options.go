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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"hpc-launcher/pkg/logging"
	"hpc-launcher/pkg/orchestrator"
	"hpc-launcher/pkg/orchestrator/hpc"
	"hpc-launcher/pkg/schedulers"
	"hpc-launcher/pkg/systems"

	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

// launchOptions are the flags shared by launch and torchrun-hpc.
type launchOptions struct {
	nodes         int
	procsPerNode  int
	gpusPerProc   int
	gpusAtLeast   int
	gpumemAtLeast float64
	local         bool

	scheduler   string
	queue       string
	account     string
	reservation string
	timeLimit   int
	jobName     string
	workDir     string

	bg               bool
	setupOnly        bool
	outputScript     string
	outLog           string
	errLog           string
	colorStderr      bool
	runFromLaunchDir bool
	saveHostlist     bool

	systemParams []string
	launchArgs   []string
}

func addLaunchFlags(fs *pflag.FlagSet, o *launchOptions) {
	// Job size
	fs.IntVarP(&o.nodes, "nodes", "N", 0, "Number of requested nodes.")
	fs.IntVarP(&o.procsPerNode, "procs-per-node", "n", 0, "Number of requested processes per node.")
	fs.IntVar(&o.gpusPerProc, "gpus-per-proc", 0, "Number of GPUs per process (default 1 on GPU systems).")
	fs.IntVarP(&o.gpusAtLeast, "gpus-at-least", "g", 0,
		"Total number of GPUs requested. Mutually exclusive with --nodes and --procs-per-node.")
	fs.Float64Var(&o.gpumemAtLeast, "gpumem-at-least", 0,
		"GPU memory needed by the job in GB. Requires the system to be registered with the launcher.")
	fs.BoolVar(&o.local, "local", false, "Run locally, one process without a batch scheduler.")
	fs.StringSliceVar(&o.systemParams, "system-params", nil,
		"Override system parameters as key=value, e.g. gpus_per_node=4,mem_per_gpu=80.")

	// Schedule
	fs.StringVarP(&o.scheduler, "scheduler", "s", "",
		"Scheduler to use ("+strings.Join(schedulers.Names(), ", ")+"). Defaults to the system's preferred one.")
	fs.StringVarP(&o.queue, "queue", "q", "", "Queue (partition) to submit to.")
	fs.StringVarP(&o.account, "account", "A", "", "Account (bank) to charge.")
	fs.StringVar(&o.reservation, "reservation", "", "Reservation to run in.")
	fs.IntVarP(&o.timeLimit, "time-limit", "t", 0, "Time limit in minutes.")
	fs.StringVarP(&o.jobName, "job-name", "J", "", "Job name.")
	fs.StringVar(&o.workDir, "work-dir", "", "Working directory of the job.")
	fs.BoolVar(&o.bg, "bg", false,
		"Submit the job as a batch job. Otherwise wait for it and forward its output to the console.")
	fs.StringArrayVar(&o.launchArgs, "launch-arg", nil,
		"Extra scheduler argument key[=value]. Replaces an existing argument; ~key removes it. Repeatable.")

	// Script and logs
	fs.BoolVar(&o.setupOnly, "setup-only", false, "Write the launch script without running it.")
	fs.StringVarP(&o.outputScript, "output-script", "o", "", "Path of the launch script. Defaults to launch.sh in the launch folder.")
	fs.StringVar(&o.outLog, "out", "", "Standard output log file. Defaults to out.log in the launch folder.")
	fs.StringVar(&o.errLog, "err", "", "Standard error log file. Defaults to err.log in the launch folder.")
	fs.BoolVar(&o.colorStderr, "color-stderr", isatty.IsTerminal(os.Stderr.Fd()), "Color standard error output red on the console.")
	fs.BoolVar(&o.runFromLaunchDir, "run-from-launch-dir", false, "Run the command from the launch folder.")
	fs.BoolVar(&o.saveHostlist, "save-hostlist", false, "Save the list of allocated hosts into the launch folder.")
}

// validateFlags rejects conflicting flag combinations.
func validateFlags(o *launchOptions) error {
	switch {
	case o.local && o.bg:
		return errors.New("--local jobs cannot be run in the background")
	case o.local && o.scheduler != "":
		return errors.New("--local and --scheduler are mutually exclusive")
	case o.workDir != "" && o.runFromLaunchDir:
		return errors.New("--work-dir and --run-from-launch-dir are mutually exclusive")
	case o.gpusAtLeast > 0 && (o.nodes > 0 || o.procsPerNode > 0):
		return errors.New("--gpus-at-least is mutually exclusive with --nodes and --procs-per-node")
	case o.gpumemAtLeast > 0 && o.procsPerNode > 0:
		return errors.New("--gpumem-at-least and --procs-per-node are mutually exclusive")
	case o.gpumemAtLeast > 0 && o.gpusAtLeast > 0:
		return errors.New("--gpumem-at-least and --gpus-at-least are mutually exclusive")
	case o.nodes < 0 || o.procsPerNode < 0 || o.gpusPerProc < 0 || o.gpusAtLeast < 0 || o.gpumemAtLeast < 0:
		return errors.New("resource counts must not be negative")
	case o.timeLimit < 0:
		return errors.New("--time-limit must not be negative")
	}
	return nil
}

// launcher bundles what one launch needs.
type launcher struct {
	opts      *launchOptions
	system    *systems.System
	plan      systems.Plan
	scheduler schedulers.Scheduler
}

// prepareLaunch resolves the resource request on sys and builds the scheduler.
func prepareLaunch(o *launchOptions, sys *systems.System) (*launcher, error) {
	if err := validateFlags(o); err != nil {
		return nil, err
	}
	overrides, err := systems.ParseParamOverrides(o.systemParams)
	if err != nil {
		return nil, err
	}
	plan := systems.Resolve(sys, o.queue, systems.Request{
		Nodes:         o.nodes,
		ProcsPerNode:  o.procsPerNode,
		GPUsPerProc:   o.gpusPerProc,
		GPUsAtLeast:   o.gpusAtLeast,
		GPUMemAtLeast: o.gpumemAtLeast,
	}, overrides)
	logging.Info("System parameters: %s", plan.Params)

	name := sys.PreferredScheduler()
	switch {
	case o.local:
		name = "local"
	case o.scheduler != "":
		name = o.scheduler
	}
	spec := &schedulers.JobSpec{
		Nodes:        plan.Nodes,
		ProcsPerNode: plan.ProcsPerNode,
		GPUsPerProc:  plan.GPUsPerProc,
		JobName:      o.jobName,
		WorkDir:      o.workDir,
		OutLogFile:   o.outLog,
		ErrLogFile:   o.errLog,
		TimeLimit:    o.timeLimit,
		Queue:        o.queue,
		Account:      o.account,
		Reservation:  o.reservation,
	}
	if len(o.launchArgs) > 0 {
		spec.OverrideLaunchArgs = schedulers.ParseArgs(o.launchArgs)
	}
	sch, err := schedulers.New(name, spec)
	if err != nil {
		return nil, err
	}
	logging.Info("Using %s scheduler: nodes=%d ppn=%d gpus_per_proc=%d", sch.Name(), spec.Nodes, spec.ProcsPerNode, spec.GPUsPerProc)
	return &launcher{opts: o, system: sys, plan: plan, scheduler: sch}, nil
}

// setupTorchrun exports the variables torchrun-hpc workers read.
func (l *launcher) setupTorchrun(rdv string) error {
	protocol, err := schedulers.ParseProtocol(rdv)
	if err != nil {
		var upe *schedulers.UnsupportedProtocolError
		if errors.As(err, &upe) {
			upe.Scheduler = l.scheduler.Name()
		}
		return err
	}
	rdvEnv, err := l.scheduler.SetupRendezvousProtocol(protocol)
	if err != nil {
		return err
	}
	fraction := l.plan.Params.FractionMaxGPUMem
	if fraction == 0 {
		fraction = 1.0
	}
	l.system.ExtendEnvironmentVariables(
		schedulers.EnvVar{Name: schedulers.EnvMaxGPUMem, Value: strconv.FormatFloat(fraction, 'f', -1, 64)},
		schedulers.EnvVar{Name: "TOKENIZERS_PARALLELISM", Value: "false"},
		schedulers.EnvVar{Name: "TORCH_NCCL_ENABLE_MONITORING", Value: "0"},
	)
	l.system.ExtendEnvironmentVariables(rdvEnv...)
	return nil
}

func (l *launcher) jobDefinition(command string, args []string, torchrun bool) orchestrator.JobDefinition {
	return orchestrator.JobDefinition{
		Command:          command,
		Args:             args,
		Blocking:         !l.opts.bg,
		SetupOnly:        l.opts.setupOnly,
		ScriptFile:       l.opts.outputScript,
		ColorStderr:      l.opts.colorStderr,
		RunFromLaunchDir: l.opts.runFromLaunchDir,
		SaveHostlist:     l.opts.saveHostlist,
		TorchrunHPC:      torchrun,
	}
}

// detectSystem loads the catalog and picks the current system.
func detectSystem() (*systems.System, error) {
	catalog, err := systems.LoadCatalog(afero.NewOsFs(), systemsFile)
	if err != nil {
		return nil, err
	}
	sys := systems.Autodetect(catalog)
	logging.Info("Detected system: %s [%s]", sys.Name, sys.Family)
	return sys, nil
}

// submit runs the launch and reports its outcome. It returns the exit code
// the launcher process should end with.
func (l *launcher) submit(ctx context.Context, job orchestrator.JobDefinition, stdout io.Writer) (int, error) {
	orch, err := hpc.NewHPCOrchestrator(l.scheduler, l.system)
	if err != nil {
		return 1, err
	}
	res, err := orch.SubmitJob(ctx, job)
	var subErr *orchestrator.SubmissionError
	switch {
	case errors.As(err, &subErr):
		if subErr.ExitCode != 0 {
			return subErr.ExitCode, nil
		}
		return 1, nil
	case err != nil:
		return 1, err
	}
	if res.HasJobID {
		fmt.Fprintf(stdout, "Job ID: %s\n", res.JobID)
	}
	logging.Info("Launch %s (folder %s)", res.State, res.Folder)
	return res.ExitCode, nil
}
