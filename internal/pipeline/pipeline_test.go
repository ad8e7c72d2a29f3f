package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"idsm/internal/logging"
	"idsm/internal/metrics"
	"idsm/internal/model"
	"idsm/internal/posterior"
	"idsm/internal/sampler"
	fixtures "idsm/testutil"
)

func testRequest(t *testing.T, cfg model.Config, runSeed int64) Request {
	t.Helper()
	ds := fixtures.Simulate(t, cfg, 3, []int{2}, 11)
	return Request{
		Config:     cfg,
		Data:       ds.Data,
		Consts:     ds.Consts,
		Dims:       ds.Graph.Dims(),
		OriginSeed: 11,
		RunSeed:    runSeed,
		Chains:     2,
		TestRun:    true,
	}
}

func TestRunTestModeIsDeterministic(t *testing.T) {
	cfg := model.Config{SurvVarT: true}
	first, err := New().Run(context.Background(), testRequest(t, cfg, 42))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	again, err := New().Run(context.Background(), testRequest(t, cfg, 42))
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if diff := cmp.Diff(first.Draws, again.Draws); diff != "" {
		t.Fatalf("same seeds gave different draws (-first +again):\n%s", diff)
	}
	other, err := New().Run(context.Background(), testRequest(t, cfg, 43))
	if err != nil {
		t.Fatalf("other run: %v", err)
	}
	if cmp.Equal(first.Draws.Chains[0].Draws, other.Draws.Chains[0].Draws) {
		t.Fatalf("different run seeds gave identical draws")
	}

	if len(first.Draws.Chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(first.Draws.Chains))
	}
	for i, c := range first.Draws.Chains {
		if c.Index != i || len(c.Draws) != sampler.TestRun().Saved() {
			t.Fatalf("chain %d: index %d with %d draws", i, c.Index, len(c.Draws))
		}
	}
	if cmp.Equal(first.Draws.Chains[0].Draws, first.Draws.Chains[1].Draws) {
		t.Fatalf("chains share a random stream")
	}
	if _, ok := first.Draws.Axes[model.NodeDensity]; !ok {
		t.Fatalf("draws carry no axes for Density")
	}
	if first.Draws.Variant != first.Graph.Variant() || first.Draws.OriginSeed != 11 || first.Draws.RunSeed != 42 {
		t.Fatalf("unexpected draws identity %+v", first.Draws)
	}
}

func TestRunRecordsMetricsAndLogs(t *testing.T) {
	reg := prometheus.NewRegistry()
	core, logs := observer.New(zapcore.DebugLevel)
	r := New(WithMetrics(metrics.NewRecorder(reg)), WithLogger(logging.Sugar(zap.New(core))))
	req := testRequest(t, model.Config{}, 7)
	req.Chains = 3
	if _, err := r.Run(context.Background(), req); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n, err := testutil.GatherAndCount(reg, "idsm_sampler_acceptance_rate"); err != nil || n != 3 {
		t.Fatalf("expected 3 acceptance series, got %d (%v)", n, err)
	}
	if got := logs.FilterMessage("chain finished").Len(); got != 3 {
		t.Fatalf("expected 3 chain logs, got %d", got)
	}
	if logs.FilterMessage("run finished").Len() != 1 {
		t.Fatalf("missing run finished log")
	}
}

func TestRunArtifacts(t *testing.T) {
	res, err := New().Run(context.Background(), testRequest(t, model.Config{}, 3))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	artifacts, err := res.Artifacts(posterior.FormatDraws, posterior.FormatSummary)
	if err != nil {
		t.Fatalf("artifacts: %v", err)
	}
	if len(artifacts) != 2 || artifacts[0].Format != posterior.FormatDraws || len(artifacts[1].Payload) == 0 {
		t.Fatalf("unexpected artifacts %+v", artifacts)
	}
}

func TestRunRejectsBadRequests(t *testing.T) {
	base := testRequest(t, model.Config{}, 1)

	bad := base
	bad.Engine = "gibbs"
	if _, err := New().Run(context.Background(), bad); !errors.Is(err, sampler.ErrUnknownEngine) {
		t.Fatalf("expected unknown engine, got %v", err)
	}

	bad = base
	bad.Config = model.Config{Telemetry: true, TelemetryArea: 1}
	if _, err := New().Run(context.Background(), bad); !errors.Is(err, model.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}

	bad = base
	bad.TestRun = false
	bad.Spec = sampler.RunSpec{Iter: 5, Burnin: 5, Thin: 1}
	if _, err := New().Run(context.Background(), bad); err == nil {
		t.Fatalf("expected spec validation error")
	}

	bad = base
	bad.Chains = -1
	if _, err := New().Run(context.Background(), bad); err == nil {
		t.Fatalf("expected chain count error")
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := testRequest(t, model.Config{}, 5)
	if _, err := New().Run(ctx, req); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type failingEngine struct{}

func (failingEngine) Name() string { return "failing" }

func (failingEngine) Compile(*model.Graph, model.Data, model.Constants, []string) (sampler.Executable, error) {
	return failingExec{}, nil
}

type failingExec struct{}

func (failingExec) Columns() []string { return nil }

func (failingExec) Run(_ context.Context, chain int, _ model.Values, _ uint64, _ sampler.RunSpec) (sampler.Chain, error) {
	if chain == 1 {
		return sampler.Chain{}, errors.New("diverged")
	}
	return sampler.Chain{Index: chain}, nil
}

func TestRunChainFailureDiscardsDraws(t *testing.T) {
	r := New(WithEngines(func(string) (sampler.Engine, error) { return failingEngine{}, nil }))
	res, err := r.Run(context.Background(), testRequest(t, model.Config{}, 9))
	if err == nil || res.Graph != nil {
		t.Fatalf("expected failure without result, got %+v, %v", res, err)
	}
}
