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
	"bytes"
	"strings"
	"text/template"

	"hpc-launcher/pkg/logging"
)

// localScriptTemplate renders the script of a job run without a scheduler.
const localScriptTemplate = `#!/bin/sh
# Setup
export RANK=0
{{- range .Env}}
export {{.Name}}={{.Value}}
{{- end}}
{{- if .Hostlist}}
{{.Hostlist}}
{{- end}}

# Run
{{.Command}}
`

var localScript = template.Must(template.New("local").Parse(localScriptTemplate))

// Local runs the job as a single process on the current host.
type Local struct {
	base
}

func NewLocal(spec *JobSpec) *Local {
	return &Local{base: newBase(spec)}
}

func (*Local) Name() string {
	return "local"
}

func (l *Local) BuildArguments(p Platform, _ bool) {
	l.reset(p, l)
}

// LaunchCommand is empty: the script is executed directly.
func (l *Local) LaunchCommand(p Platform, blocking bool) []string {
	l.BuildArguments(p, blocking)
	return nil
}

func (l *Local) LauncherScript(p Platform, command string, args []string, opts ScriptOptions) string {
	l.BuildArguments(p, opts.Blocking)

	env := append(append([]EnvVar{}, environment(p)...), passthroughEnvironment(p)...)
	if len(l.spec.LDPreloads) > 0 {
		env = append(env, EnvVar{Name: "LD_PRELOAD", Value: strings.Join(l.spec.LDPreloads, ":")})
	}
	data := struct {
		Env      []EnvVar
		Hostlist string
		Command  string
	}{
		Env:      env,
		Hostlist: strings.TrimSuffix(hostlistSnippet(opts, "RANK", "hostname"), "\n"),
		Command:  commandLine(nil, command, args),
	}
	return renderTemplate(localScript, data)
}

func renderTemplate(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		logging.Error("Failed to render %s launch script: %v", t.Name(), err)
	}
	return buf.String()
}

func (*Local) JobID(string) (string, bool) {
	return "", false
}

func (*Local) NumNodesInAllocation() (int, bool) {
	return 0, false
}

func (*Local) ParallelConfiguration() (ParallelConfig, error) {
	return ParallelConfig{WorldSize: 1, Rank: 0, LocalWorldSize: 1, LocalRank: 0}, nil
}

func (l *Local) SetupRendezvousProtocol(protocol Protocol) ([]EnvVar, error) {
	return rendezvousEnv(l.Name(), protocol, staticAddr("127.0.0.1"))
}

func (l *Local) DynamicallyConfigureRendezvousProtocol(protocol Protocol) ([]EnvVar, error) {
	return dynamicRendezvousEnv(l.Name(), protocol, staticAddr("127.0.0.1"))
}
