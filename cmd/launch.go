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
	"os"

	"hpc-launcher/pkg/logging"

	"github.com/spf13/cobra"
)

var launchOpts = &launchOptions{}

func init() {
	rootCmd.AddCommand(launchCmd)
	launchCmd.Flags().SetInterspersed(false)
	addLaunchFlags(launchCmd.Flags(), launchOpts)
}

var launchCmd = &cobra.Command{
	Use:   "launch [flags] COMMAND [ARGS...]",
	Short: "Launches a distributed job on the current HPC cluster.",
	Long: `The 'launch' command resolves the requested resources against the detected
system, renders a launch script into a new launch folder and runs it, either
waiting for the job and forwarding its output or submitting it as a batch job
(--bg).`,
	Args:         cobra.MinimumNArgs(1),
	Run:          runLaunchCmd,
	SilenceUsage: true,
}

func runLaunchCmd(cmd *cobra.Command, args []string) {
	sys, err := detectSystem()
	if err != nil {
		logging.Fatal("Failed to load system catalog: %v", err)
	}
	l, err := prepareLaunch(launchOpts, sys)
	if err != nil {
		logging.Fatal("%v", err)
	}
	code, err := l.submit(cmd.Context(), l.jobDefinition(args[0], args[1:], false), cmd.OutOrStdout())
	if err != nil {
		logging.Fatal("launch failed: %v", err)
	}
	if code != 0 {
		os.Exit(code)
	}
}
