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

package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/fatih/color"
)

// StreamOptions configures RunWithLiveOutput.
type StreamOptions struct {
	Dir string
	// Env is the full environment; nil inherits the current one.
	Env []string

	// Log files receive the raw output.
	OutFile io.Writer
	ErrFile io.Writer

	// Console writers receive the same output as it is produced.
	Stdout io.Writer
	Stderr io.Writer

	// ColorStderr colors the console copy of stderr. Log files are never colored.
	ColorStderr bool
}

// colorWriter wraps every chunk written to w in the given color.
type colorWriter struct {
	w io.Writer
	c *color.Color
}

func (cw colorWriter) Write(p []byte) (int, error) {
	if _, err := cw.c.Fprint(cw.w, string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func teeTo(file, console io.Writer) io.Writer {
	switch {
	case file == nil && console == nil:
		return io.Discard
	case file == nil:
		return console
	case console == nil:
		return file
	}
	return io.MultiWriter(file, console)
}

// RunWithLiveOutput starts argv and forwards its stdout and stderr to both the
// log files and the console while the process runs. It blocks until the
// process exits and returns its exit code.
func RunWithLiveOutput(ctx context.Context, argv []string, opts StreamOptions) (int, error) {
	if len(argv) == 0 {
		return -1, fmt.Errorf("no command specified")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	consoleErr := opts.Stderr
	if opts.ColorStderr && consoleErr != nil {
		c := color.New(color.FgRed)
		c.EnableColor()
		consoleErr = colorWriter{w: consoleErr, c: c}
	}
	stdout := teeTo(opts.OutFile, opts.Stdout)
	stderr := teeTo(opts.ErrFile, consoleErr)

	// Pipes are drained before Wait so no output is lost at exit.
	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("failed to open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(stdout, outPipe)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(stderr, errPipe)
	}()
	wg.Wait()

	err = cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to wait for %s: %w", argv[0], err)
}
