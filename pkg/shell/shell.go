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

// Package shell runs external commands, either capturing their output or
// streaming it live to the console and to log files.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandResult holds the outcome of a finished command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// Err is set when the command could not be started at all.
	Err error
}

// Command is a configurable external command.
type Command struct {
	ctx   context.Context
	name  string
	args  []string
	dir   string
	env   []string
	input string
}

// NewCommand creates a command that runs name with args.
func NewCommand(name string, args ...string) *Command {
	return &Command{ctx: context.Background(), name: name, args: args}
}

// SetInput sets the data fed to the command's stdin.
func (c *Command) SetInput(input string) *Command {
	c.input = input
	return c
}

// SetDir sets the working directory of the command.
func (c *Command) SetDir(dir string) *Command {
	c.dir = dir
	return c
}

// SetEnv sets the full environment of the command ("K=V" entries).
func (c *Command) SetEnv(env []string) *Command {
	c.env = env
	return c
}

// SetContext sets the context used to start the command.
func (c *Command) SetContext(ctx context.Context) *Command {
	c.ctx = ctx
	return c
}

// Execute runs the command to completion and captures stdout and stderr.
func (c *Command) Execute() CommandResult {
	cmd := exec.CommandContext(c.ctx, c.name, c.args...)
	cmd.Dir = c.dir
	if c.env != nil {
		cmd.Env = c.env
	}
	if c.input != "" {
		cmd.Stdin = strings.NewReader(c.input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = fmt.Errorf("failed to run %s: %w", c.name, err)
		if res.Stderr == "" {
			res.Stderr = res.Err.Error()
		}
	}
	return res
}

// ExecuteCommand runs name with args and captures its output.
func ExecuteCommand(name string, args ...string) CommandResult {
	return NewCommand(name, args...).Execute()
}
