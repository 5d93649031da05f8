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

package hpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hpc-launcher/pkg/logging"
	"hpc-launcher/pkg/orchestrator"
	"hpc-launcher/pkg/schedulers"
	"hpc-launcher/pkg/shell"

	"github.com/otiai10/copy"
	"github.com/spf13/afero"
)

// ErrLocalBackground is returned when a local launch is asked to run as a
// batch job.
var ErrLocalBackground = errors.New("local launches cannot run in the background")

// TrampolineCommand is the hidden subcommand that bootstraps torchrun-hpc workers.
const TrampolineCommand = "trampoline"

const timestampLayout = "2006-01-02_15h04m05s"

// HPCOrchestrator implements the Orchestrator interface for HPC schedulers.
type HPCOrchestrator struct {
	Scheduler schedulers.Scheduler
	Platform  schedulers.Platform

	Fs afero.Fs
	// BaseDir is where launch folders are created; relative commands are
	// resolved against it.
	BaseDir string
	Stdout  io.Writer
	Stderr  io.Writer

	now        func() time.Time
	runLive    func(ctx context.Context, argv []string, opts shell.StreamOptions) (int, error)
	runCapture func(ctx context.Context, argv []string) shell.CommandResult
	executable func() (string, error)
	stage      func(src, dst string) error
}

// NewHPCOrchestrator creates an orchestrator working in the current directory.
func NewHPCOrchestrator(s schedulers.Scheduler, p schedulers.Platform) (*HPCOrchestrator, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return &HPCOrchestrator{
		Scheduler: s,
		Platform:  p,
		Fs:        afero.NewOsFs(),
		BaseDir:   wd,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		now:       time.Now,
		runLive:   shell.RunWithLiveOutput,
		runCapture: func(ctx context.Context, argv []string) shell.CommandResult {
			return shell.NewCommand(argv[0], argv[1:]...).SetContext(ctx).Execute()
		},
		executable: os.Executable,
		stage: func(src, dst string) error {
			return copy.Copy(src, dst, copy.Options{Sync: true})
		},
	}, nil
}

// folderName is <prefix>-<job name or command basename>_<timestamp>.
func folderName(prefix, jobName, commandName string, t time.Time) string {
	name := jobName
	if name == "" {
		name = commandName
	}
	return fmt.Sprintf("%s-%s_%s", prefix, name, t.Format(timestampLayout))
}

// commandFolderName strips spaces and semicolons from the command basename.
func commandFolderName(command string) string {
	base := filepath.Base(strings.TrimSpace(command))
	return strings.NewReplacer(" ", "_", ";", "-").Replace(base)
}

func (o *HPCOrchestrator) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(o.BaseDir, p)
}

// SubmitJob renders the launch script for job and runs or submits it.
func (o *HPCOrchestrator) SubmitJob(ctx context.Context, job orchestrator.JobDefinition) (orchestrator.Result, error) {
	res := orchestrator.Result{State: orchestrator.Unconfigured}
	sch := o.Scheduler
	spec := sch.Spec()

	if sch.Name() == "local" && !job.Blocking {
		return res, ErrLocalBackground
	}

	prefix := "launch"
	if job.TorchrunHPC {
		prefix = "torchrun_hpc"
	}
	cmdName := commandFolderName(job.Command)
	folder := o.abs(folderName(prefix, spec.JobName, cmdName, o.now()))
	res.Folder = folder
	makeFolder := job.Blocking || job.RunFromLaunchDir || job.SaveHostlist

	if job.ScriptFile != "" {
		res.ScriptPath = o.abs(job.ScriptFile)
		if err := o.Fs.MkdirAll(filepath.Dir(res.ScriptPath), 0o755); err != nil {
			return res, fmt.Errorf("failed to create directory for %s: %w", res.ScriptPath, err)
		}
		if exists, _ := afero.Exists(o.Fs, res.ScriptPath); exists {
			logging.Warn("Overwriting existing file %s", res.ScriptPath)
		}
	} else {
		res.ScriptPath = filepath.Join(folder, "launch.sh")
		makeFolder = true
	}
	if spec.OutLogFile == "" {
		spec.OutLogFile = filepath.Join(folder, "out.log")
		makeFolder = true
	} else {
		spec.OutLogFile = o.abs(spec.OutLogFile)
	}
	if spec.ErrLogFile == "" {
		spec.ErrLogFile = filepath.Join(folder, "err.log")
		makeFolder = true
	} else {
		spec.ErrLogFile = o.abs(spec.ErrLogFile)
	}

	command := job.Command
	if makeFolder {
		if err := o.Fs.MkdirAll(folder, 0o755); err != nil {
			return res, fmt.Errorf("failed to create launch folder %s: %w", folder, err)
		}
	}
	if job.RunFromLaunchDir {
		if isFile, _ := afero.Exists(o.Fs, o.abs(command)); isFile {
			command = o.abs(command)
		}
		if spec.WorkDir == "" {
			spec.WorkDir = folder
		}
	}
	if job.TorchrunHPC {
		stub, err := o.stageTrampoline(folder, cmdName)
		if err != nil {
			return res, err
		}
		command = fmt.Sprintf("%s %s %s", stub, TrampolineCommand, o.abs(command))
	}

	sch.BuildArguments(o.Platform, job.Blocking)
	res.State = orchestrator.ArgumentsBuilt
	res.Command = append(sch.LaunchCommand(o.Platform, job.Blocking), res.ScriptPath)

	logging.Info("Script filename: %s", res.ScriptPath)
	script := sch.LauncherScript(o.Platform, command, job.Args, schedulers.ScriptOptions{
		Blocking:     job.Blocking,
		SaveHostlist: job.SaveHostlist,
		HostlistDir:  folder,
	})
	script += "\n# Launch command: " + strings.Join(res.Command, " ") + "\n"
	if err := o.writeScript(res.ScriptPath, script); err != nil {
		return res, err
	}
	res.State = orchestrator.ScriptRendered

	if job.SetupOnly {
		logging.Warn("To launch, run: %s", strings.Join(res.Command, " "))
		res.State = orchestrator.DryRunReported
		return res, nil
	}

	if job.Blocking {
		o.checkAllocation(spec)
	}
	logging.Info("Launching %s", strings.Join(res.Command, " "))
	res.State = orchestrator.Launched

	if job.Blocking {
		return o.runBlocking(ctx, job, res)
	}
	return o.submitBatch(ctx, res)
}

func (o *HPCOrchestrator) writeScript(path, script string) error {
	if err := afero.WriteFile(o.Fs, path, []byte(script), 0o700); err != nil {
		return fmt.Errorf("failed to write launch script %s: %w", path, err)
	}
	if err := o.Fs.Chmod(path, 0o700); err != nil {
		return fmt.Errorf("failed to make %s executable: %w", path, err)
	}
	return nil
}

// stageTrampoline copies the running binary into the launch folder so that
// workers run the same trampoline version as the launcher.
func (o *HPCOrchestrator) stageTrampoline(folder, cmdName string) (string, error) {
	self, err := o.executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate the launcher executable: %w", err)
	}
	stub := filepath.Join(folder, "torchrun_hpc_"+cmdName)
	if err := o.stage(self, stub); err != nil {
		return "", fmt.Errorf("failed to stage trampoline into %s: %w", folder, err)
	}
	logging.Debug("Staged trampoline %s", stub)
	return stub, nil
}

// checkAllocation warns when a launch from inside an allocation asks for
// more nodes than the allocation has.
func (o *HPCOrchestrator) checkAllocation(spec *schedulers.JobSpec) {
	n, ok := o.Scheduler.NumNodesInAllocation()
	if ok && spec.Nodes > n {
		logging.Warn("Requested %d nodes, but the current allocation only has %d", spec.Nodes, n)
	}
}

func (o *HPCOrchestrator) runBlocking(ctx context.Context, job orchestrator.JobDefinition, res orchestrator.Result) (orchestrator.Result, error) {
	spec := o.Scheduler.Spec()
	outFile, err := o.Fs.Create(spec.OutLogFile)
	if err != nil {
		res.State = orchestrator.Failed
		return res, fmt.Errorf("failed to create %s: %w", spec.OutLogFile, err)
	}
	defer outFile.Close()
	errFile, err := o.Fs.Create(spec.ErrLogFile)
	if err != nil {
		res.State = orchestrator.Failed
		return res, fmt.Errorf("failed to create %s: %w", spec.ErrLogFile, err)
	}
	defer errFile.Close()

	code, err := o.runLive(ctx, res.Command, shell.StreamOptions{
		OutFile:     outFile,
		ErrFile:     errFile,
		Stdout:      o.Stdout,
		Stderr:      o.Stderr,
		ColorStderr: job.ColorStderr,
	})
	res.ExitCode = code
	if err != nil {
		res.State = orchestrator.Failed
		return res, fmt.Errorf("failed to run %s: %w", res.ScriptPath, err)
	}
	if code != 0 {
		res.State = orchestrator.Failed
		return res, nil
	}
	res.State = orchestrator.Completed
	return res, nil
}

func (o *HPCOrchestrator) submitBatch(ctx context.Context, res orchestrator.Result) (orchestrator.Result, error) {
	out := o.runCapture(ctx, res.Command)
	if out.ExitCode != 0 || out.Stderr != "" {
		logging.Error("Batch scheduler exited with error code %d", out.ExitCode)
		io.WriteString(o.Stderr, out.Stderr)
		res.State = orchestrator.Failed
		res.ExitCode = out.ExitCode
		return res, &orchestrator.SubmissionError{ExitCode: out.ExitCode, Stderr: out.Stderr}
	}
	res.JobID, res.HasJobID = o.Scheduler.JobID(out.Stdout)
	res.State = orchestrator.Completed
	return res, nil
}
