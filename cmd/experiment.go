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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/mtbench/internal/config"
	"github.com/valpere/mtbench/internal/store"
	"github.com/valpere/mtbench/internal/validator"
)

var (
	expList          bool
	expSkipCompleted bool
	expParallel      int
	expCheckLanguage bool
	expDryRun        bool
)

var experimentCmd = &cobra.Command{
	Use:   "experiment <id>",
	Short: "Run a configured experiment",
	Long: `Run every (target language, model) batch of an experiment from the
configuration. Artifacts are written to <output_dir>/output_<id>/ as
<model>_<source>_to_<target>.txt.

A failed batch does not stop the experiment; failures are reported at the
end and the command exits non-zero.

Use --list to see the configured experiments.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if expList {
			ids := appConfig.ExperimentIDs()
			if len(ids) == 0 {
				fmt.Println("No experiments configured.")
				return nil
			}
			fmt.Println("Available experiments:")
			for _, id := range ids {
				fmt.Printf("- %s\n", id)
			}
			return nil
		}
		if len(args) == 0 {
			return errors.New("experiment id is required (use --list to see available experiments)")
		}

		exp, err := appConfig.Experiment(args[0])
		if err != nil {
			return fmt.Errorf("%w (use --list to see available experiments)", err)
		}
		jobs := experimentJobs(exp)

		opts := jobOptions{quiet: expParallel > 1}
		if expCheckLanguage {
			opts.checkLanguage = validator.New()
		}
		if !expDryRun {
			db, err := openLedger()
			if err != nil {
				return err
			}
			defer db.Close()
			opts.ledger = db

			if expSkipCompleted {
				if jobs, err = skipCompleted(cmd, db, jobs); err != nil {
					return err
				}
			}
			if err := os.MkdirAll(exp.OutputDir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		for _, j := range jobs {
			fmt.Printf("Running with LLM type: %s\n", j.ModelID)
			fmt.Printf("Source Language: %s\n", j.SourceLang)
			fmt.Printf("Target Language: %s\n", j.TargetLang)
			fmt.Printf("Temperature: %g\n", j.Strategy.Temperature)
			fmt.Printf("Strategy: %s\n", j.StrategyName)
			fmt.Printf("Output file: %s\n", j.OutFile)
		}
		if expDryRun || len(jobs) == 0 {
			return nil
		}

		var (
			mu       sync.Mutex
			failures []error
		)
		g := new(errgroup.Group)
		g.SetLimit(max(expParallel, 1))
		for _, j := range jobs {
			g.Go(func() error {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				if err := runJob(cmd.Context(), j, opts); err != nil {
					logger.Error("batch failed", "model", j.ModelID, "target", j.TargetLang, "error", err)
					mu.Lock()
					failures = append(failures, fmt.Errorf("%s -> %s: %w", j.ModelID, j.TargetLang, err))
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Printf("\nCompleted %d of %d batches for experiment %s\n", len(jobs)-len(failures), len(jobs), exp.ID)
		if len(failures) > 0 {
			fmt.Fprintln(os.Stderr, "Failed batches:")
			for _, f := range failures {
				fmt.Fprintf(os.Stderr, "  %v\n", f)
			}
			return fmt.Errorf("%d of %d batches failed", len(failures), len(jobs))
		}
		return nil
	},
}

// experimentJobs expands an experiment into batches, target-language major.
func experimentJobs(exp *config.Experiment) []job {
	var jobs []job
	for _, target := range exp.TargetLanguages {
		for _, modelID := range exp.Models {
			name := fmt.Sprintf("%s_%s_to_%s.txt", modelID, exp.Source.Language, target)
			jobs = append(jobs, job{
				Experiment:   exp.ID,
				ModelID:      modelID,
				SourceLang:   exp.Source.Language,
				TargetLang:   target,
				SourceFile:   exp.SourceFile,
				OutFile:      filepath.Join(exp.OutputDir, name),
				StrategyName: exp.StrategyName,
				Strategy:     exp.Strategy,
				NumLines:     exp.NumLines,
			})
		}
	}
	return jobs
}

// skipCompleted drops batches the ledger has a completed run for, as long
// as the artifact is still on disk.
func skipCompleted(cmd *cobra.Command, db *store.Store, jobs []job) ([]job, error) {
	done := make(map[string]map[string]string)
	var kept []job
	for _, j := range jobs {
		targets, ok := done[j.ModelID]
		if !ok {
			var err error
			targets, err = db.CompletedTargets(cmd.Context(), j.Experiment, j.ModelID)
			if err != nil {
				return nil, fmt.Errorf("failed to read ledger: %w", err)
			}
			done[j.ModelID] = targets
		}
		if out, ok := targets[j.TargetLang]; ok {
			if _, err := os.Stat(out); err == nil {
				fmt.Fprintf(os.Stderr, "Skipping %s -> %s: completed (%s)\n", j.ModelID, j.TargetLang, out)
				continue
			}
		}
		kept = append(kept, j)
	}
	return kept, nil
}

func init() {
	rootCmd.AddCommand(experimentCmd)

	experimentCmd.Flags().BoolVar(&expList, "list", false, "List available experiments")
	experimentCmd.Flags().BoolVar(&expSkipCompleted, "skip-completed", false, "Skip batches with a completed run in the ledger")
	experimentCmd.Flags().IntVar(&expParallel, "parallel", 1, "Number of batches to run at once, each with its own client")
	experimentCmd.Flags().BoolVar(&expCheckLanguage, "check-language", false, "Warn about outputs not detected as the target language")
	experimentCmd.Flags().BoolVar(&expDryRun, "dry-run", false, "Print the batches without running them")
}
