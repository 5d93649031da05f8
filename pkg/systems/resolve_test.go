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

package systems

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"hpc-launcher/pkg/logging"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func mockSystem() *System {
	return NewSystem("mock", SystemConfig{
		Family:       FamilyGeneric,
		DefaultQueue: "default",
		Queues: map[string]SystemParams{
			"default":    {CoresPerNode: 64, GPUsPerNode: 3, GPUArch: "sm_70", MemPerGPU: 11, NUMADomains: 3, Scheduler: "local"},
			"nondefault": {CoresPerNode: 64, GPUsPerNode: 3, GPUArch: "sm_70", MemPerGPU: 11, NUMADomains: 3, Scheduler: "local"},
			"cpuonly":    {CoresPerNode: 32, NUMADomains: 2, Scheduler: "local"},
		},
	})
}

type resolved struct {
	Nodes, ProcsPerNode, GPUsPerProc int
}

func resolveMock(queue string, req Request) resolved {
	p := Resolve(mockSystem(), queue, req, ParamOverrides{})
	return resolved{p.Nodes, p.ProcsPerNode, p.GPUsPerProc}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		queue string
		req   Request
		want  resolved
	}{
		{"defaults to one node of GPU ranks", "", Request{}, resolved{1, 3, 1}},
		{"explicit nodes and procs", "", Request{Nodes: 4, ProcsPerNode: 7}, resolved{4, 7, 1}},
		{"gpus at least", "", Request{GPUsAtLeast: 7}, resolved{3, 3, 1}},
		{"gpus at least with procs", "", Request{GPUsAtLeast: 7, ProcsPerNode: 2}, resolved{4, 2, 1}},
		{"gpumem fits in fewer gpus", "", Request{GPUMemAtLeast: 12}, resolved{1, 2, 1}},
		{"gpumem fills one node", "", Request{GPUMemAtLeast: 33}, resolved{1, 3, 1}},
		{"gpumem spills to a second node", "", Request{GPUMemAtLeast: 34}, resolved{2, 3, 1}},
		{"cpu only queue uses numa domains", "cpuonly", Request{}, resolved{1, 2, 0}},
		{"unknown queue uses default", "nosuchqueue", Request{GPUsAtLeast: 6}, resolved{2, 3, 1}},
		{"oversubscription is not clamped", "", Request{Nodes: 2, ProcsPerNode: 2, GPUsPerProc: 2}, resolved{2, 2, 2}},
		{"gpus per proc is clamped", "", Request{Nodes: 2, ProcsPerNode: 2, GPUsPerProc: 4}, resolved{2, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, resolveMock(tt.queue, tt.req)); diff != "" {
				t.Errorf("plan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveWithoutParams(t *testing.T) {
	p := Resolve(Generic("unknown"), "", Request{GPUsAtLeast: 16}, ParamOverrides{})
	if diff := cmp.Diff(resolved{1, 1, 1}, resolved{p.Nodes, p.ProcsPerNode, p.GPUsPerProc}); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	if p.Known {
		t.Errorf("Expected unknown system parameters")
	}
}

func TestResolveWithOverrides(t *testing.T) {
	o, err := ParseParamOverrides([]string{"gpus_per_node=4", "mem_per_gpu=20"})
	if err != nil {
		t.Fatalf("ParseParamOverrides failed: %v", err)
	}
	p := Resolve(Generic("unknown"), "", Request{GPUMemAtLeast: 100}, o)
	if diff := cmp.Diff(resolved{2, 4, 1}, resolved{p.Nodes, p.ProcsPerNode, p.GPUsPerProc}); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	if !p.Known || p.Params.FractionMaxGPUMem != 1.0 {
		t.Errorf("Expected overridden parameters with default memory fraction, got %+v", p.Params)
	}

	o, _ = ParseParamOverrides([]string{"gpus_per_node=1"})
	p = Resolve(mockSystem(), "", Request{Nodes: 1, ProcsPerNode: 1, GPUsPerProc: 2}, o)
	if p.GPUsPerProc != 1 {
		t.Errorf("Expected gpus per proc clamped by the overridden node size, got %d", p.GPUsPerProc)
	}
	if p.Params.MemPerGPU != 11 {
		t.Errorf("Expected other parameters to be kept, got %+v", p.Params)
	}
}

func TestResolveOversubscriptionWarning(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	defer logging.SetOutput(os.Stderr)

	resolveMock("", Request{Nodes: 2, ProcsPerNode: 2, GPUsPerProc: 2})
	if !strings.Contains(buf.String(), "exceeds the 3 GPUs") {
		t.Errorf("Expected an oversubscription warning, got %q", buf.String())
	}
}

func TestResolveProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("explicit nodes and procs are kept", prop.ForAll(
		func(nodes, procs int) bool {
			got := resolveMock("", Request{Nodes: nodes, ProcsPerNode: procs})
			return got.Nodes == nodes && got.ProcsPerNode == procs
		},
		gen.IntRange(1, 512), gen.IntRange(1, 64),
	))

	properties.Property("gpus at least yields ceil(gpus / procs) nodes", prop.ForAll(
		func(gpus, procs int) bool {
			got := resolveMock("", Request{GPUsAtLeast: gpus, ProcsPerNode: procs})
			return got.Nodes == (gpus+procs-1)/procs && got.ProcsPerNode == procs
		},
		gen.IntRange(1, 4096), gen.IntRange(1, 16),
	))

	properties.Property("gpumem just above one node needs two full nodes", prop.ForAll(
		func(mem float64) bool {
			got := resolveMock("", Request{GPUMemAtLeast: mem})
			return got.Nodes == 2 && got.ProcsPerNode == 3
		},
		gen.Float64Range(33.001, 44),
	))

	properties.Property("gpumem below one node shrinks the process count", prop.ForAll(
		func(mem float64) bool {
			got := resolveMock("", Request{GPUMemAtLeast: mem})
			want := 1
			if mem > 11 {
				want = 2
			}
			return got.Nodes == 1 && got.ProcsPerNode == want
		},
		gen.Float64Range(0.001, 22),
	))

	properties.TestingRun(t)
}
