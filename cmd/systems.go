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
	"fmt"

	"hpc-launcher/pkg/logging"
	"hpc-launcher/pkg/systems"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(systemsCmd)
}

var systemsCmd = &cobra.Command{
	Use:   "systems",
	Short: "Prints the catalog of known systems as YAML.",
	Run:   runSystemsCmd,
	Args:  cobra.NoArgs,
}

func runSystemsCmd(cmd *cobra.Command, args []string) {
	catalog, err := systems.LoadCatalog(afero.NewOsFs(), systemsFile)
	if err != nil {
		logging.Fatal("Failed to load system catalog: %v", err)
	}
	logging.Info("Current system: %s", systems.DetectName())
	out, err := catalog.YAML()
	if err != nil {
		logging.Fatal("Failed to render system catalog: %v", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
}
