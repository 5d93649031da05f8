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

// Package logging provides the printf-style logging helpers used across
// hpc-launcher. Messages go to stderr so that they never mix with the
// output of the launched job.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const prefix = "hpc-launcher: "

var logger = newLogger(os.Stderr)

// prefixFormatter renders "hpc-launcher: <message>" lines.
type prefixFormatter struct{}

func (prefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	return []byte(prefix + e.Message + "\n"), nil
}

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(prefixFormatter{})
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SetVerbose switches between the default (warnings and errors) and the
// verbose (info and debug) log levels.
func SetVerbose(verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Debug logs at debug level.
func Debug(f string, a ...any) {
	logger.Debugf(f, a...)
}

// Info logs at info level.
func Info(f string, a ...any) {
	logger.Infof(f, a...)
}

// Warn logs at warning level.
func Warn(f string, a ...any) {
	logger.Warnf(f, a...)
}

// Error logs at error level.
func Error(f string, a ...any) {
	logger.Errorf(f, a...)
}

// Fatal logs the message and exits with status 1.
func Fatal(f string, a ...any) {
	logger.Log(logrus.FatalLevel, fmt.Sprintf(f, a...))
	os.Exit(1)
}
