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

	"github.com/spf13/cobra"

	"github.com/valpere/mtbench/internal/artifact"
	"github.com/valpere/mtbench/internal/reference"
)

var (
	refDir    string
	refPasses int
)

var referencesCmd = &cobra.Command{
	Use:   "references <artifact>...",
	Short: "Write reference and candidate files for artifacts",
	Long: `For each artifact, write <artifact>.ref with every FLORES reference
sentence of the target language repeated once per pass, and
<artifact>.no_header with the translations only. The two files are
line-aligned for scoring.

Passes are inferred from the artifact when --passes is 0.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := refDir
		if dir == "" {
			dir = appConfig.Paths.BaseFlores
		}

		for _, path := range args {
			passes := refPasses
			if passes == 0 {
				a, err := artifact.ReadFile(path)
				if err != nil {
					return err
				}
				if a.Header.NLines == 0 || len(a.Lines)%a.Header.NLines != 0 {
					return fmt.Errorf("%s: cannot infer passes from %d lines and NLINES %d, use --passes",
						path, len(a.Lines), a.Header.NLines)
				}
				passes = len(a.Lines) / a.Header.NLines
			}

			files, err := reference.Generate(path, reference.Options{
				RefDir:        dir,
				Passes:        passes,
				LanguageCodes: appConfig.LanguageCodes,
			})
			if err != nil {
				return fmt.Errorf("failed to generate references for %s: %w", path, err)
			}
			fmt.Printf("Generated %s and %s (%d lines)\n", files.Ref, files.Candidates, files.Lines)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(referencesCmd)

	referencesCmd.Flags().StringVar(&refDir, "ref-dir", "", "Directory with devtest.<code> reference files (default paths.base_flores)")
	referencesCmd.Flags().IntVar(&refPasses, "passes", 0, "Translations per source line (0 infers from the artifact)")
}
