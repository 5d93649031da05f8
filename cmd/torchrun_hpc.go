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

var (
	torchrunOpts = &launchOptions{}
	rdvProtocol  string
)

func init() {
	rootCmd.AddCommand(torchrunCmd)
	torchrunCmd.Flags().SetInterspersed(false)
	addLaunchFlags(torchrunCmd.Flags(), torchrunOpts)
	torchrunCmd.Flags().StringVar(&rdvProtocol, "rdv", "tcp", "Rendezvous protocol of torch.distributed (tcp or mpi).")
}

var torchrunCmd = &cobra.Command{
	Use:   "torchrun-hpc [flags] COMMAND [ARGS...]",
	Short: "Launches and runs distributed PyTorch on the current HPC cluster.",
	Long: `The 'torchrun-hpc' command works like 'launch' but prepares every process
for torch.distributed: the launcher binary is staged into the launch folder
and wraps the command, setting RANK, WORLD_SIZE, LOCAL_RANK, LOCAL_WORLD_SIZE,
MASTER_ADDR and MASTER_PORT from the scheduler before starting it. Python
scripts are run with 'python3 -u'.`,
	Args:         cobra.MinimumNArgs(1),
	Run:          runTorchrunCmd,
	SilenceUsage: true,
}

func runTorchrunCmd(cmd *cobra.Command, args []string) {
	sys, err := detectSystem()
	if err != nil {
		logging.Fatal("Failed to load system catalog: %v", err)
	}
	l, err := prepareLaunch(torchrunOpts, sys)
	if err != nil {
		logging.Fatal("%v", err)
	}
	if err := l.setupTorchrun(rdvProtocol); err != nil {
		logging.Fatal("Failed to set up rendezvous: %v", err)
	}
	code, err := l.submit(cmd.Context(), l.jobDefinition(args[0], args[1:], true), cmd.OutOrStdout())
	if err != nil {
		logging.Fatal("torchrun-hpc failed: %v", err)
	}
	if code != 0 {
		os.Exit(code)
	}
}
