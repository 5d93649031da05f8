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
	"math"

	"hpc-launcher/pkg/logging"
)

// Request is a resource request. Zero means unset.
type Request struct {
	Nodes         int
	ProcsPerNode  int
	GPUsPerProc   int
	GPUsAtLeast   int
	GPUMemAtLeast float64
}

// Plan is a resolved resource request.
type Plan struct {
	System *System
	Queue  string
	// Params are the effective system parameters; Known is false when
	// neither the catalog nor the overrides provided any.
	Params SystemParams
	Known  bool

	Nodes        int
	ProcsPerNode int
	GPUsPerProc  int
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Resolve turns req into a concrete node, process and GPU plan for queue on
// sys. It never fails: missing information falls back to defaults and
// questionable requests are logged.
func Resolve(sys *System, queue string, req Request, overrides ParamOverrides) Plan {
	params, used, known := sys.Params(queue)
	if !overrides.Empty() {
		if !known {
			params = SystemParams{}.withDefaults()
		}
		params = overrides.Apply(params)
		known = true
	}
	plan := Plan{
		System: sys, Queue: used, Params: params, Known: known,
		Nodes: req.Nodes, ProcsPerNode: req.ProcsPerNode, GPUsPerProc: req.GPUsPerProc,
	}

	if known && params.HasGPU() {
		if plan.GPUsPerProc == 0 {
			plan.GPUsPerProc = 1
		}
		if plan.GPUsPerProc > params.GPUsPerNode {
			logging.Info("Requested %d GPUs per process, but only %d GPUs per node are available; clamping",
				plan.GPUsPerProc, params.GPUsPerNode)
			plan.GPUsPerProc = params.GPUsPerNode
		}
	}

	switch {
	case plan.Nodes > 0 && plan.ProcsPerNode > 0:
	case known:
		if plan.ProcsPerNode == 0 {
			plan.ProcsPerNode = max(params.DefaultProcsPerNode(), 1)
		}
		if req.GPUsAtLeast > 0 {
			plan.Nodes = ceilDiv(req.GPUsAtLeast, plan.ProcsPerNode)
		} else if req.GPUMemAtLeast > 0 && params.MemPerGPU > 0 {
			numGPUs := int(math.Ceil(req.GPUMemAtLeast / params.MemPerGPU))
			plan.Nodes = ceilDiv(numGPUs, plan.ProcsPerNode)
			if plan.Nodes == 1 {
				plan.ProcsPerNode = numGPUs
			}
		}
		if plan.Nodes == 0 {
			plan.Nodes = 1
		}
	default:
		plan.Nodes = max(plan.Nodes, 1)
		plan.ProcsPerNode = max(plan.ProcsPerNode, 1)
		plan.GPUsPerProc = max(plan.GPUsPerProc, 1)
	}

	if known && params.HasGPU() && plan.ProcsPerNode*plan.GPUsPerProc > params.GPUsPerNode {
		logging.Warn("The requested number of GPUs per node (%d) exceeds the %d GPUs available on each node",
			plan.ProcsPerNode*plan.GPUsPerProc, params.GPUsPerNode)
	}
	return plan
}
