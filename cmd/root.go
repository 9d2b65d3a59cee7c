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
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/mtbench/internal/config"
	"github.com/valpere/mtbench/internal/logging"
)

var version = "0.1.0"

// defaultConfigDir is used when --config is not given and the directory exists.
const defaultConfigDir = "config"

var (
	cfgPath      string
	dbPath       string
	logLevel     string
	logFormat    string
	logOutput    string
	maxRetries   int
	initialDelay string
	maxDelay     string

	appConfig *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

// flagKeys binds persistent flags to config keys; set flags win over files.
var flagKeys = map[string]string{
	"paths::database":      "db",
	"log::level":           "log-level",
	"log::format":          "log-format",
	"log::output":          "log-output",
	"retry::max_retries":   "max-retries",
	"retry::initial_delay": "initial-delay",
	"retry::max_delay":     "max-delay",
}

var rootCmd = &cobra.Command{
	Use:   "mtbench",
	Short: "Machine translation benchmark runner",
	Long: `A CLI application that translates FLORES-200 sentences with LLM and
machine translation providers and writes benchmark artifacts for scoring.

Supported providers: OpenAI, Together, OpenRouter, Anthropic, Google Gemini,
Google Cloud Translation, DeepL

Use "mtbench experiment --list" to see configured experiments.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			if info, err := os.Stat(defaultConfigDir); err == nil && info.IsDir() {
				path = defaultConfigDir
			}
		}

		cfg, err := config.Load(path, config.WithFlags(cmd.Flags(), flagKeys))
		if err != nil {
			return err
		}

		l, closer, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		slog.SetDefault(l)

		appConfig, logger, logCloser = cfg, l, closer
		logger.Debug("configuration loaded", "path", path, "models", len(cfg.Models), "experiments", len(cfg.Experiments))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgPath, "config", "c", "", "Config file or directory (default ./config if present)")
	pf.StringVar(&dbPath, "db", config.DefaultDatabase, "Run ledger database path")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&logOutput, "log-output", "stderr", "Log output: stderr, stdout or a file path")
	pf.IntVar(&maxRetries, "max-retries", 0, "Attempts per call including the first (overrides config)")
	pf.StringVar(&initialDelay, "initial-delay", "", "First backoff delay, e.g. 1s (overrides config)")
	pf.StringVar(&maxDelay, "max-delay", "", "Backoff cap, e.g. 60s (overrides config)")
}
