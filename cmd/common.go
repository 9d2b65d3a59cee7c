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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/valpere/mtbench/internal/artifact"
	"github.com/valpere/mtbench/internal/batch"
	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/corpus"
	"github.com/valpere/mtbench/internal/language"
	"github.com/valpere/mtbench/internal/logging"
	"github.com/valpere/mtbench/internal/postprocess"
	"github.com/valpere/mtbench/internal/provider"
	"github.com/valpere/mtbench/internal/store"
	"github.com/valpere/mtbench/internal/validator"
)

// job is one batch: every source line of a corpus, sampled Passes times,
// translated by one model into one target language.
type job struct {
	Experiment   string
	ModelID      string
	SourceLang   string
	TargetLang   string
	SourceFile   string
	OutFile      string
	StrategyName string
	Strategy     call.Strategy
	NumLines     int
}

type jobOptions struct {
	ledger        *store.Store
	checkLanguage *validator.Validator
	quiet         bool
}

// newClient builds the provider client for a registry model id.
func newClient(ctx context.Context, modelID string) (provider.Client, *batch.Executor, error) {
	m, err := appConfig.Model(modelID)
	if err != nil {
		return nil, nil, err
	}
	client, err := provider.New(ctx, m.ProviderConfig(strings.ToLower(modelID), os.Getenv))
	if err != nil {
		return nil, nil, err
	}

	exec := &batch.Executor{
		Policy:         appConfig.Retry,
		MaxConcurrency: m.MaxConcurrency,
		Limiter:        m.Limiter(),
		Logger:         logger,
	}
	return client, exec, nil
}

// runJob translates j and writes its artifact. The artifact is only
// written once every call has succeeded.
func runJob(ctx context.Context, j job, opts jobOptions) error {
	log := logging.Component(logger, "generate").With("model", j.ModelID, "target", j.TargetLang)

	lines, err := corpus.ReadLines(j.SourceFile, j.NumLines)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("no source lines in %s", j.SourceFile)
	}
	if j.NumLines > 0 && len(lines) < j.NumLines {
		log.Warn("source file has fewer lines than requested", "requested", j.NumLines, "available", len(lines))
	}

	src := language.Resolve(j.SourceLang, appConfig.LanguageCodes)
	tgt := language.Resolve(j.TargetLang, appConfig.LanguageCodes)
	descriptors, err := call.Build(strings.ToLower(j.ModelID), lines, j.Strategy, call.Languages{
		Source:     j.SourceLang,
		Target:     j.TargetLang,
		SourceCode: src.ISO,
		TargetCode: tgt.ISO,
	})
	if err != nil {
		return fmt.Errorf("failed to build calls: %w", err)
	}

	client, exec, err := newClient(ctx, j.ModelID)
	if err != nil {
		return err
	}
	defer provider.Close(client)

	var progress *progressLine
	if !opts.quiet {
		progress = &progressLine{w: os.Stderr, label: fmt.Sprintf("%s -> %s", j.ModelID, j.TargetLang)}
		exec.Progress = progress.update
	}

	var runID string
	if opts.ledger != nil {
		runID, err = opts.ledger.StartRun(ctx, store.Run{
			Experiment: j.Experiment,
			ModelID:    strings.ToLower(j.ModelID),
			Strategy:   j.StrategyName,
			SourceLang: j.SourceLang,
			TargetLang: j.TargetLang,
			SourceFile: j.SourceFile,
			NLines:     len(lines),
		})
		if err != nil {
			return err
		}
	}

	log.Info("translating", "lines", len(lines), "passes", j.Strategy.Passes, "calls", len(descriptors))
	res, err := exec.Run(ctx, descriptors, client)
	if progress != nil {
		progress.finish()
	}
	if err != nil {
		finishRun(opts.ledger, runID, "", err)
		return err
	}

	outputs := make([]string, len(res.Calls))
	for i, c := range res.Calls {
		outputs[i] = postprocess.Line(c.Text)
	}

	header := artifact.Header{
		ModelName:    strings.ToLower(j.ModelID),
		NLines:       len(lines),
		StrategyName: j.StrategyName,
		SourceFile:   j.SourceFile,
		Source:       j.SourceLang,
		Target:       j.TargetLang,
	}
	if dir := filepath.Dir(j.OutFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			err = fmt.Errorf("failed to create output directory: %w", err)
			finishRun(opts.ledger, runID, "", err)
			return err
		}
	}
	if err := artifact.WriteFile(j.OutFile, header, outputs); err != nil {
		finishRun(opts.ledger, runID, "", err)
		return err
	}
	log.Info("artifact written", "path", j.OutFile, "elapsed", res.Elapsed)

	if opts.checkLanguage != nil && tgt.ISO != "" {
		for _, m := range opts.checkLanguage.CheckBatch(outputs, tgt.ISO) {
			d := res.Calls[m.Index].Descriptor
			log.Warn("output language mismatch", "index", m.Index, "line", d.Line, "pass", d.Pass, "reason", m.Reason)
		}
	}

	if opts.ledger != nil {
		records := make([]store.CallRecord, len(res.Calls))
		for i, c := range res.Calls {
			records[i] = store.CallRecord{
				Index:     i,
				Line:      c.Descriptor.Line,
				Pass:      c.Descriptor.Pass,
				Prompt:    c.Descriptor.Prompt,
				Output:    outputs[i],
				Attempts:  c.Attempts,
				LatencyMs: c.Latency.Milliseconds(),
			}
		}
		if err := opts.ledger.SaveCalls(ctx, runID, records); err != nil {
			log.Warn("failed to record calls", "run", runID, "error", err)
		}
		finishRun(opts.ledger, runID, j.OutFile, nil)
	}
	return nil
}

// finishRun closes a ledger run. It uses a fresh context so a cancelled
// batch is still recorded as failed.
func finishRun(ledger *store.Store, runID, outFile string, runErr error) {
	if ledger == nil || runID == "" {
		return
	}
	if err := ledger.FinishRun(context.Background(), runID, outFile, runErr); err != nil {
		logger.Warn("failed to record run result", "run", runID, "error", err)
	}
}

// openLedger opens the run ledger, creating its directory if needed.
func openLedger() (*store.Store, error) {
	path := appConfig.Paths.Database
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// progressLine redraws a single "\r label: done/total" line. Executor
// goroutines report out of order, so stale counts are dropped.
type progressLine struct {
	w     io.Writer
	label string

	mu   sync.Mutex
	last int
}

func (p *progressLine) update(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if done <= p.last {
		return
	}
	p.last = done
	fmt.Fprintf(p.w, "\r  %s: %d/%d", p.label, done, total)
}

// finish ends the line once the batch has returned.
func (p *progressLine) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last > 0 {
		fmt.Fprintln(p.w)
	}
}
