package sampler

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"idsm/internal/model"
	"idsm/testutil"
)

func compile(t *testing.T, ds testutil.Dataset, monitors []string) Executable {
	t.Helper()
	engine, err := Lookup("metropolis")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	exec, err := engine.Compile(ds.Graph, ds.Data, ds.Consts, monitors)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return exec
}

func inits(ds testutil.Dataset, seed uint64) model.Values {
	return model.Inits(ds.Graph, ds.Data, ds.Consts, rand.New(rand.NewPCG(seed, 0)))
}

func TestTestRunIsReproducible(t *testing.T) {
	ds := testutil.Simulate(t, model.Config{SurvVarT: true}, 3, []int{2}, 7)
	exec := compile(t, ds, nil)

	first, err := exec.Run(context.Background(), 1, inits(ds, 11), 11, TestRun())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	second, err := exec.Run(context.Background(), 1, inits(ds, 11), 11, TestRun())
	if err != nil {
		t.Fatalf("run again: %v", err)
	}
	if len(first.Draws) != TestRun().Saved() {
		t.Fatalf("expected %d draws, got %d", TestRun().Saved(), len(first.Draws))
	}
	for i := range first.Draws {
		for j := range first.Draws[i] {
			if first.Draws[i][j] != second.Draws[i][j] {
				t.Fatalf("draw %d column %s differs: %v vs %v", i, first.Columns[j], first.Draws[i][j], second.Draws[i][j])
			}
		}
	}

	other, err := exec.Run(context.Background(), 1, inits(ds, 11), 12, TestRun())
	if err != nil {
		t.Fatalf("run other seed: %v", err)
	}
	same := true
	for i := range other.Draws {
		for j := range other.Draws[i] {
			if other.Draws[i][j] != first.Draws[i][j] {
				same = false
			}
		}
	}
	if same {
		t.Fatalf("different seeds produced identical chains")
	}
}

func TestRunHonoursBurninAndThin(t *testing.T) {
	ds := testutil.Simulate(t, model.Config{}, 2, []int{1}, 3)
	exec := compile(t, ds, []string{model.NodeMuR, model.NodeNTotExp})
	spec := RunSpec{Iter: 60, Burnin: 50, Thin: 3}
	chain, err := exec.Run(context.Background(), 2, inits(ds, 5), 5, spec)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(chain.Draws) != 4 {
		t.Fatalf("expected 4 saved draws, got %d", len(chain.Draws))
	}
	if len(chain.Columns) != 1+2 {
		t.Fatalf("unexpected columns %v", chain.Columns)
	}
	if chain.Index != 2 || chain.Seed != 5 {
		t.Fatalf("chain identity not recorded: %+v", chain)
	}
	if chain.Acceptance <= 0 || chain.Acceptance >= 1 {
		t.Fatalf("implausible acceptance %v", chain.Acceptance)
	}
	for _, row := range chain.Draws {
		if row[0] <= 0 || row[0] > 15 {
			t.Fatalf("Mu.R draw %v outside prior support", row[0])
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ds := testutil.Simulate(t, model.Config{}, 2, []int{1}, 3)
	exec := compile(t, ds, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := exec.Run(ctx, 1, inits(ds, 1), 1, TestRun()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunSpecValidation(t *testing.T) {
	tests := []struct {
		spec RunSpec
		ok   bool
	}{
		{TestRun(), true},
		{RunSpec{Iter: 100, Burnin: 50, Thin: 5}, true},
		{RunSpec{Iter: 0, Thin: 1}, false},
		{RunSpec{Iter: 10, Burnin: 10, Thin: 1}, false},
		{RunSpec{Iter: 10, Thin: 0}, false},
	}
	for _, tc := range tests {
		if err := tc.spec.Validate(); (err == nil) != tc.ok {
			t.Fatalf("%+v: validate error %v, want ok=%v", tc.spec, err, tc.ok)
		}
	}
	if got := (RunSpec{Iter: 100, Burnin: 50, Thin: 5}).Saved(); got != 10 {
		t.Fatalf("saved = %d, want 10", got)
	}
}

func TestLookupUnknownEngine(t *testing.T) {
	if _, err := Lookup("hmc"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestCompileRejectsOmittedMonitor(t *testing.T) {
	ds := testutil.Simulate(t, model.Config{}, 2, []int{1}, 3)
	if _, err := (Metropolis{}).Compile(ds.Graph, ds.Data, ds.Consts, []string{model.NodeBetaRR}); err == nil {
		t.Fatalf("expected compile error for omitted monitor")
	}
}
