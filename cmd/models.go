/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the model registry",
	Long: `List every model id usable in generate and experiments, with its provider,
upstream model name and whether its API key is present in the environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROVIDER\tMODEL\tKEY ENV\tKEY SET\tRPS")
		for _, id := range slices.Sorted(maps.Keys(appConfig.Models)) {
			m := appConfig.Models[id]
			env := m.KeyEnv()
			keySet := env != "" && os.Getenv(env) != ""
			rps := "-"
			if m.RequestsPerSecond > 0 {
				rps = fmt.Sprintf("%g", m.RequestsPerSecond)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n", id, m.Provider, m.Model, env, keySet, rps)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
