package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/mtbench/internal/artifact"
	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/config"
	"github.com/valpere/mtbench/internal/retry"
	"github.com/valpere/mtbench/internal/store"
)

// echoServer answers chat completions with "T:" plus the user prompt.
func echoServer(t *testing.T, fail bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail {
			http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
			return
		}
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q},"finish_reason":"stop"}]}`,
			"T:"+req.Messages[len(req.Messages)-1].Content)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func setupTestConfig(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	policy := retry.DefaultPolicy()
	policy.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	appConfig = &config.Config{
		Models: map[string]config.ModelConfig{
			"local": {Provider: "openai", Model: "llama3", BaseURL: baseURL},
		},
		Retry: policy,
	}
	logger = slog.New(slog.DiscardHandler)
}

func testJob(t *testing.T, dir string) job {
	t.Helper()
	src := filepath.Join(dir, "devtest.eng_Latn")
	require.NoError(t, os.WriteFile(src, []byte("one\n\ntwo\nthree\nfour\n"), 0o644))
	return job{
		Experiment:   "exp1",
		ModelID:      "local",
		SourceLang:   "English",
		TargetLang:   "French",
		SourceFile:   src,
		OutFile:      filepath.Join(dir, "out", "local_English_to_French.txt"),
		StrategyName: "double",
		Strategy: call.Strategy{
			SystemPrompt:   "Translate {in_lang} to {out_lang}.",
			PromptTemplate: "{source}",
			Passes:         2,
		},
		NumLines: 3,
	}
}

func TestRunJob_WritesArtifactAndLedger(t *testing.T) {
	srv, calls := echoServer(t, false)
	setupTestConfig(t, srv.URL)
	dir := t.TempDir()

	db, err := store.New(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer db.Close()

	j := testJob(t, dir)
	require.NoError(t, runJob(context.Background(), j, jobOptions{ledger: db, quiet: true}))
	assert.Equal(t, int32(6), calls.Load())

	a, err := artifact.ReadFile(j.OutFile)
	require.NoError(t, err)
	assert.Equal(t, artifact.Header{
		ModelName:    "local",
		NLines:       3,
		StrategyName: "double",
		SourceFile:   j.SourceFile,
		Source:       "English",
		Target:       "French",
	}, a.Header)
	assert.Equal(t, []string{"T:one", "T:one", "T:two", "T:two", "T:three", "T:three"}, a.Lines)

	runs, err := db.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusCompleted, runs[0].Status)
	assert.Equal(t, 6, runs[0].NCalls)
	assert.Equal(t, j.OutFile, runs[0].OutputFile)

	done, err := db.CompletedTargets(context.Background(), "exp1", "local")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"French": j.OutFile}, done)
}

func TestRunJob_FailureWritesNoArtifact(t *testing.T) {
	srv, _ := echoServer(t, true)
	setupTestConfig(t, srv.URL)
	dir := t.TempDir()

	db, err := store.New(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer db.Close()

	j := testJob(t, dir)
	err = runJob(context.Background(), j, jobOptions{ledger: db, quiet: true})
	require.Error(t, err)

	_, statErr := os.Stat(j.OutFile)
	assert.True(t, os.IsNotExist(statErr))

	runs, err := db.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestExperimentJobs(t *testing.T) {
	exp := &config.Experiment{
		ID:              "exp1",
		Models:          []string{"gpt-4o", "claude-3-haiku"},
		StrategyName:    "single_pass",
		Source:          config.Source{Language: "English", Code: "eng_Latn"},
		SourceFile:      "flores/devtest.eng_Latn",
		TargetLanguages: []string{"French", "German"},
		OutputDir:       "output_exp1",
		NumLines:        10,
	}

	jobs := experimentJobs(exp)
	require.Len(t, jobs, 4)

	var got []string
	for _, j := range jobs {
		got = append(got, j.OutFile)
		assert.Equal(t, "exp1", j.Experiment)
		assert.Equal(t, 10, j.NumLines)
	}
	assert.Equal(t, []string{
		filepath.Join("output_exp1", "gpt-4o_English_to_French.txt"),
		filepath.Join("output_exp1", "claude-3-haiku_English_to_French.txt"),
		filepath.Join("output_exp1", "gpt-4o_English_to_German.txt"),
		filepath.Join("output_exp1", "claude-3-haiku_English_to_German.txt"),
	}, got)
}

func TestSkipCompleted(t *testing.T) {
	dir := t.TempDir()
	db, err := store.New(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	present := filepath.Join(dir, "fr.txt")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))

	for target, out := range map[string]string{"French": present, "German": filepath.Join(dir, "gone.txt")} {
		id, err := db.StartRun(ctx, store.Run{Experiment: "exp1", ModelID: "gpt-4o", Strategy: "s",
			SourceLang: "English", TargetLang: target, SourceFile: "src", NLines: 1})
		require.NoError(t, err)
		require.NoError(t, db.FinishRun(ctx, id, out, nil))
	}

	jobs := []job{
		{Experiment: "exp1", ModelID: "gpt-4o", TargetLang: "French"},
		{Experiment: "exp1", ModelID: "gpt-4o", TargetLang: "German"},
		{Experiment: "exp1", ModelID: "gpt-4o", TargetLang: "Polish"},
	}
	c := &cobra.Command{}
	c.SetContext(ctx)

	kept, err := skipCompleted(c, db, jobs)
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, "German", kept[0].TargetLang)
	assert.Equal(t, "Polish", kept[1].TargetLang)
}

func TestProgressLine_ConcurrentUpdates(t *testing.T) {
	var buf bytes.Buffer
	p := &progressLine{w: &buf, label: "gpt-4o -> French"}

	const total = 50
	var wg sync.WaitGroup
	for i := range total {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.update(i+1, total)
		}()
	}
	wg.Wait()
	// A late, lower count must not redraw over the final one.
	p.update(3, total)
	p.finish()

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.True(t, strings.HasSuffix(out, "\r  gpt-4o -> French: 50/50\n"), out)

	var prev int
	for _, frame := range strings.Split(strings.TrimSuffix(out, "\n"), "\r")[1:] {
		var done, n int
		_, err := fmt.Sscanf(strings.TrimPrefix(frame, "  gpt-4o -> French: "), "%d/%d", &done, &n)
		require.NoError(t, err, frame)
		assert.Greater(t, done, prev)
		prev = done
	}
}

func TestProgressLine_FinishWithoutUpdates(t *testing.T) {
	var buf bytes.Buffer
	p := &progressLine{w: &buf, label: "x"}
	p.finish()
	assert.Zero(t, buf.Len())
}
