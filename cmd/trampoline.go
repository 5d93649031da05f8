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
	"hpc-launcher/pkg/logging"
	"hpc-launcher/pkg/orchestrator/hpc"
	"hpc-launcher/pkg/torchrun"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(trampolineCmd)
	trampolineCmd.Flags().SetInterspersed(false)
}

var trampolineCmd = &cobra.Command{
	Use:          hpc.TrampolineCommand + " COMMAND [ARGS...]",
	Short:        "Starts one torchrun-hpc worker process.",
	Hidden:       true,
	Args:         cobra.MinimumNArgs(1),
	Run:          runTrampolineCmd,
	SilenceUsage: true,
}

func runTrampolineCmd(cmd *cobra.Command, args []string) {
	if err := torchrun.New().Run(args); err != nil {
		logging.Fatal("trampoline: %v", err)
	}
}
