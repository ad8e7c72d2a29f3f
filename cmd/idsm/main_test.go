package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"idsm/internal/posterior"
)

func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("IDSM_BLOB_DRIVER", "fs")
	t.Setenv("IDSM_BLOB_FS_ROOT", filepath.Join(dir, "artifacts"))
	t.Setenv("IDSM_JOBLOG_DRIVER", "sqlite")
	t.Setenv("IDSM_JOBLOG_DSN", filepath.Join(dir, "jobs.db"))
	t.Setenv("IDSM_SAMPLER_TEST_RUN", "true")
	t.Setenv("IDSM_SAMPLER_CHAINS", "2")
	t.Setenv("IDSM_SIM_YEARS", "3")
	t.Setenv("IDSM_SIM_SITES", "2")
	t.Setenv("IDSM_LOG_LEVEL", "warn")
	return dir
}

func invoke(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := cli(args, stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func TestGraphCommand(t *testing.T) {
	testEnv(t)
	code, out, errOut := invoke(t, "graph")
	if code != 0 {
		t.Fatalf("graph exited %d: %s", code, errOut)
	}
	for _, want := range []string{"# variant single/perAd", "Density", "mu.dd", "dunif(-10, 100)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("graph output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Survs1") {
		t.Fatalf("telemetry nodes printed for a variant without telemetry")
	}

	code, out, errOut = invoke(t, "graph", "--json")
	if code != 0 {
		t.Fatalf("graph --json exited %d: %s", code, errOut)
	}
	var doc struct {
		Variant string `json:"variant"`
		Nodes   []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode graph json: %v", err)
	}
	if doc.Variant != "single/perAd" || len(doc.Nodes) == 0 {
		t.Fatalf("unexpected graph document %+v", doc)
	}
}

func TestSimulateRunSummarize(t *testing.T) {
	dir := testEnv(t)
	bundle := filepath.Join(dir, "bundle.json")
	if code, _, errOut := invoke(t, "simulate", "--origin-seed", "4", "--out", bundle); code != 0 {
		t.Fatalf("simulate exited %d: %s", code, errOut)
	}
	code, out, errOut := invoke(t, "run", "--inputs", bundle, "--origin-seed", "4", "--run-seed", "9")
	if code != 0 {
		t.Fatalf("run exited %d: %s", code, errOut)
	}
	if !strings.Contains(out, "idsm_4_9") || !strings.Contains(out, "succeeded") {
		t.Fatalf("unexpected run output:\n%s", out)
	}
	for _, f := range posterior.ArchiveFormats {
		if _, err := os.Stat(filepath.Join(dir, "artifacts", "idsm_4_9", string(f))); err != nil {
			t.Fatalf("archive %s missing: %v", f, err)
		}
	}

	draws := filepath.Join(dir, "artifacts", "idsm_4_9", "draws.json")
	code, out, errOut = invoke(t, "summarize", "--draws", draws)
	if code != 0 {
		t.Fatalf("summarize exited %d: %s", code, errOut)
	}
	summaries, err := posterior.ReadSummaryCSV(strings.NewReader(out))
	if err != nil || len(summaries) == 0 {
		t.Fatalf("summary output not parseable: %v", err)
	}

	code, _, errOut = invoke(t, "summarize", "--draws", "idsm_4_9/draws.json", "--out", filepath.Join(dir, "rendered"), "--format", "tidy.csv,abundance.png", "--thin", "2")
	if code != 0 {
		t.Fatalf("summarize from store exited %d: %s", code, errOut)
	}
	if _, err := os.Stat(filepath.Join(dir, "rendered", "idsm_4_9", "abundance.png")); err != nil {
		t.Fatalf("rendered plot missing: %v", err)
	}
}

func TestBatchResumesCompletedPairs(t *testing.T) {
	dir := testEnv(t)
	manifest := filepath.Join(dir, "seeds.csv")
	if err := os.WriteFile(manifest, []byte("origin_seed,run_seed\n1,1\n2,1\n"), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	code, out, errOut := invoke(t, "batch", "--manifest", manifest)
	if code != 0 {
		t.Fatalf("batch exited %d: %s", code, errOut)
	}
	if strings.Count(out, "succeeded") != 2 {
		t.Fatalf("expected 2 successes:\n%s", out)
	}
	code, out, errOut = invoke(t, "batch", "--manifest", manifest)
	if code != 0 {
		t.Fatalf("second batch exited %d: %s", code, errOut)
	}
	if strings.Count(out, "skipped") != 2 {
		t.Fatalf("expected both pairs skipped:\n%s", out)
	}
}

func TestConfigCommand(t *testing.T) {
	testEnv(t)
	code, out, errOut := invoke(t, "config")
	if code != 0 {
		t.Fatalf("config exited %d: %s", code, errOut)
	}
	if !strings.Contains(out, "log_level: warn") || !strings.Contains(out, "test_run: true") {
		t.Fatalf("unexpected config output:\n%s", out)
	}
}

func TestCLIErrors(t *testing.T) {
	testEnv(t)
	cases := [][]string{
		{"no-such-command"},
		{"batch"},
		{"summarize", "--draws", "idsm_0_0/draws.json"},
		{"graph", "--log-level", "chatty"},
		{"run", "--config", "/nonexistent/idsm.yaml"},
	}
	for _, args := range cases {
		code, _, errOut := invoke(t, args...)
		if code != 1 {
			t.Fatalf("%v: expected exit 1, got %d", args, code)
		}
		if !strings.Contains(errOut, "Error: ") {
			t.Fatalf("%v: missing error message in %q", args, errOut)
		}
	}
}

func TestExitCodes(t *testing.T) {
	live := context.Background()
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	cases := []struct {
		name string
		ctx  context.Context
		err  error
		want int
	}{
		{"ok", live, nil, 0},
		{"failed", live, errors.New("boom"), 1},
		{"wrapped cancel", live, fmt.Errorf("run: %w", context.Canceled), 130},
		{"interrupted", canceled, errors.New("batch: 2 of 2 tasks failed"), 130},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.ctx, tc.err); got != tc.want {
				t.Fatalf("exit code %d, want %d", got, tc.want)
			}
		})
	}
}

func TestInterruptedCommandExits130(t *testing.T) {
	testEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := execute(ctx, []string{"summarize", "--draws", "idsm_0_0/draws.json"}, stdout, stderr)
	if code != 130 {
		t.Fatalf("expected exit 130, got %d: %s", code, stderr.String())
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	testEnv(t)
	got := -1
	exitFunc = func(code int) { got = code }
	t.Cleanup(func() { exitFunc = os.Exit })
	oldArgs := os.Args
	os.Args = []string{"idsm", "config"}
	t.Cleanup(func() { os.Args = oldArgs })
	main()
	if got != 0 {
		t.Fatalf("expected exit code 0, got %d", got)
	}
}
