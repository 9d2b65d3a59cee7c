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
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/mtbench/internal/store"
)

var (
	runsFilter    store.RunFilter
	runsShowCalls bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run ledger",
	Long:  `List, inspect, and delete batch runs recorded in the SQLite run ledger.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openLedger()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(cmd.Context(), runsFilter)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEXPERIMENT\tMODEL\tSOURCE\tTARGET\tLINES\tCALLS\tSTATUS\tSTARTED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				r.ID, r.Experiment, r.ModelID, r.SourceLang, r.TargetLang,
				r.NLines, r.NCalls, r.Status, r.StartedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run and optionally its calls",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openLedger()
		if err != nil {
			return err
		}
		defer db.Close()

		r, err := db.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:          %s\n", r.ID)
		fmt.Printf("Experiment:  %s\n", r.Experiment)
		fmt.Printf("Model:       %s\n", r.ModelID)
		fmt.Printf("Strategy:    %s\n", r.Strategy)
		fmt.Printf("Languages:   %s -> %s\n", r.SourceLang, r.TargetLang)
		fmt.Printf("Source file: %s\n", r.SourceFile)
		fmt.Printf("Output file: %s\n", r.OutputFile)
		fmt.Printf("Lines/calls: %d/%d\n", r.NLines, r.NCalls)
		fmt.Printf("Status:      %s\n", r.Status)
		if r.Error != "" {
			fmt.Printf("Error:       %s\n", r.Error)
		}
		fmt.Printf("Started:     %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if !r.FinishedAt.IsZero() {
			fmt.Printf("Finished:    %s (%s)\n", r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
		}

		if !runsShowCalls {
			return nil
		}
		calls, err := db.ListCalls(cmd.Context(), r.ID)
		if err != nil {
			return fmt.Errorf("failed to list calls: %w", err)
		}
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IDX\tLINE\tPASS\tATTEMPTS\tLATENCY\tOUTPUT")
		for _, c := range calls {
			snippet := []rune(c.Output)
			if len(snippet) > 60 {
				snippet = append(snippet[:57], []rune("...")...)
			}
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%dms\t%s\n",
				c.Index, c.Line, c.Pass, c.Attempts, c.LatencyMs, string(snippet))
		}
		return w.Flush()
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run ledger statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openLedger()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total runs:     %d\n", stats.TotalRuns)
		fmt.Printf("Completed:      %d\n", stats.Completed)
		fmt.Printf("Failed:         %d\n", stats.Failed)
		fmt.Printf("Running:        %d\n", stats.Running)
		fmt.Printf("Total calls:    %d\n", stats.TotalCalls)
		fmt.Printf("Total attempts: %d\n", stats.TotalAttempts)
		fmt.Printf("Retried calls:  %d\n", stats.RetriedCalls)
		fmt.Printf("Avg latency:    %.0fms\n", stats.AvgLatencyMs)
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a run and its calls",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openLedger()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteRun(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
		fmt.Printf("Deleted run: %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsListCmd.Flags().StringVar(&runsFilter.Experiment, "experiment", "", "Only runs of this experiment")
	runsListCmd.Flags().StringVar(&runsFilter.ModelID, "model", "", "Only runs of this model")
	runsListCmd.Flags().StringVar(&runsFilter.TargetLang, "target", "", "Only runs into this language")
	runsListCmd.Flags().StringVar(&runsFilter.Status, "status", "", "Only runs with this status (running, completed, failed)")
	runsListCmd.Flags().IntVar(&runsFilter.Limit, "limit", 50, "Maximum runs to list (0 for all)")

	runsShowCmd.Flags().BoolVar(&runsShowCalls, "calls", false, "Also list the run's calls")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}
