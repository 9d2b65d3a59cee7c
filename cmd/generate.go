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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/valpere/mtbench/internal/validator"
)

var (
	genTemperature   float64
	genCheckLanguage bool
	genNoLedger      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <model> <in_lang> <out_lang> <source_file> <out_file> <strategy> <num_lines>",
	Short: "Translate a corpus with one model and write an artifact",
	Long: `Translate the first num_lines lines of source_file from in_lang to out_lang
with the given model and strategy, and write a benchmark artifact to out_file.

Every source line is sent strategy.passes times. The artifact holds a header
followed by one translation per call, in source order.

Example:
  mtbench generate gpt-4o English French devtest.eng_Latn out.txt single_pass 100`,
	Args: cobra.ExactArgs(7),
	RunE: func(cmd *cobra.Command, args []string) error {
		modelID, inLang, outLang, sourceFile, outFile, strategyName := args[0], args[1], args[2], args[3], args[4], args[5]
		numLines, err := strconv.Atoi(args[6])
		if err != nil || numLines < 0 {
			return fmt.Errorf("num_lines must be a non-negative integer, got %q", args[6])
		}

		strategy, err := appConfig.Strategy(strategyName)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("temperature") {
			strategy.Temperature = genTemperature
		}

		fmt.Printf("Generating with LLM: %s\n", modelID)
		fmt.Printf("Input language: %s\n", inLang)
		fmt.Printf("Output language: %s\n", outLang)
		fmt.Printf("Source file: %s\n", sourceFile)
		fmt.Printf("Output file: %s\n", outFile)
		fmt.Printf("Strategy: %s\n", strategyName)
		fmt.Printf("Number of lines: %d\n", numLines)

		opts := jobOptions{}
		if genCheckLanguage {
			opts.checkLanguage = validator.New()
		}
		if !genNoLedger {
			db, err := openLedger()
			if err != nil {
				return err
			}
			defer db.Close()
			opts.ledger = db
		}

		err = runJob(cmd.Context(), job{
			ModelID:      modelID,
			SourceLang:   inLang,
			TargetLang:   outLang,
			SourceFile:   sourceFile,
			OutFile:      outFile,
			StrategyName: strategyName,
			Strategy:     strategy,
			NumLines:     numLines,
		}, opts)
		if err != nil {
			return err
		}

		fmt.Printf("Results written to %s\n", outFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().Float64Var(&genTemperature, "temperature", 0, "Override the strategy temperature")
	generateCmd.Flags().BoolVar(&genCheckLanguage, "check-language", false, "Warn about outputs not detected as the target language")
	generateCmd.Flags().BoolVar(&genNoLedger, "no-ledger", false, "Do not record the run in the ledger database")
}
