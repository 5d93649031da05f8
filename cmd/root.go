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

const systemsFileEnv = "HPC_LAUNCHER_SYSTEMS_FILE"

var (
	verbose     bool
	systemsFile string
)

var rootCmd = &cobra.Command{
	Use:   "hpc-launcher",
	Short: "Launches distributed jobs on HPC clusters.",
	Long: `hpc-launcher translates a resource request (nodes, processes per node,
GPU count or GPU memory) into a launch on the local machine or through the
Flux, Slurm or LSF scheduler of the current system.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Run in verbose mode.")
	rootCmd.PersistentFlags().StringVar(&systemsFile, "systems-file", os.Getenv(systemsFileEnv),
		"YAML catalog of additional systems, merged over the built-in ones (also "+systemsFileEnv+").")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
