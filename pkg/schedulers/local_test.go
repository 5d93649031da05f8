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
	"os"
	"strings"
	"testing"
	"text/template"

	"hpc-launcher/pkg/logging"

	"github.com/google/go-cmp/cmp"
)

func TestLocalScript(t *testing.T) {
	p := &fakePlatform{
		env:         []EnvVar{{"OMP_NUM_THREADS", "4"}},
		passthrough: []EnvVar{{"NCCL_DEBUG", "INFO"}},
	}
	l := NewLocal(&JobSpec{Nodes: 1, ProcsPerNode: 1})
	got := l.LauncherScript(p, "echo", []string{"hello world"},
		ScriptOptions{Blocking: true, SaveHostlist: true, HostlistDir: "/tmp/run"})
	want := `#!/bin/sh
# Setup
export RANK=0
export OMP_NUM_THREADS=4
export NCCL_DEBUG=INFO
if [ "${RANK:-0}" = "0" ]; then
  echo $(hostname) | tr -d '\n' > /tmp/run/hpc_launcher_hostlist.txt
fi

# Run
echo 'hello world'
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("script mismatch (-want +got):\n%s", diff)
	}
	if cmd := l.LaunchCommand(p, true); len(cmd) != 0 {
		t.Errorf("Expected an empty launch command, got %q", cmd)
	}
}

func TestLocalWithoutScheduler(t *testing.T) {
	l := NewLocal(nil)
	if id, ok := l.JobID("anything"); ok {
		t.Errorf("Expected no job ID, got %q", id)
	}
	if _, ok := l.NumNodesInAllocation(); ok {
		t.Errorf("Expected no allocation for local runs")
	}
	got, err := l.ParallelConfiguration()
	if err != nil {
		t.Fatalf("ParallelConfiguration failed: %v", err)
	}
	if diff := cmp.Diff(ParallelConfig{WorldSize: 1, LocalWorldSize: 1}, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderTemplateLogsErrors(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	defer logging.SetOutput(os.Stderr)

	broken := template.Must(template.New("broken").Parse("#!/bin/sh\n{{.Missing}}\n"))
	renderTemplate(broken, struct{}{})
	if !strings.Contains(buf.String(), "Failed to render broken launch script") {
		t.Errorf("Expected a render error to be logged, got %q", buf.String())
	}
}
