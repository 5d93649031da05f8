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

package orchestrator

import (
	"context"
	"fmt"
)

// JobDefinition holds all the necessary parameters to launch a job.
// Resource and submission settings live in the scheduler's job spec; this
// struct carries what to run and how to run it.
type JobDefinition struct {
	Command string
	Args    []string

	// Blocking waits for the job and streams its output; otherwise the
	// launch script is submitted as a batch job.
	Blocking bool
	// SetupOnly writes the launch folder and script without running anything.
	SetupOnly bool
	// ScriptFile overrides the default <folder>/launch.sh location.
	ScriptFile       string
	ColorStderr      bool
	RunFromLaunchDir bool
	SaveHostlist     bool
	// TorchrunHPC stages the worker trampoline next to the script and wraps
	// the command with it.
	TorchrunHPC bool
}

// State is the lifecycle stage of a launch.
type State int

const (
	Unconfigured State = iota
	ArgumentsBuilt
	ScriptRendered
	DryRunReported
	Launched
	Completed
	Failed
)

var stateNames = map[State]string{
	Unconfigured:   "unconfigured",
	ArgumentsBuilt: "arguments built",
	ScriptRendered: "script rendered",
	DryRunReported: "dry run reported",
	Launched:       "launched",
	Completed:      "completed",
	Failed:         "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result describes the outcome of a launch.
type Result struct {
	State      State
	Folder     string
	ScriptPath string
	// Command is the full command line that runs the script.
	Command []string
	// JobID is set for batch submissions whose output could be parsed.
	JobID    string
	HasJobID bool
	// ExitCode is the exit status of a blocking launch.
	ExitCode int
}

// SubmissionError reports a batch submission that exited non-zero or wrote
// to stderr.
type SubmissionError struct {
	ExitCode int
	Stderr   string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("batch scheduler exited with error code %d", e.ExitCode)
}

// Orchestrator defines the interface for submitting jobs.
type Orchestrator interface {
	// SubmitJob takes a JobDefinition and orchestrates its launch.
	SubmitJob(ctx context.Context, job JobDefinition) (Result, error)
}
