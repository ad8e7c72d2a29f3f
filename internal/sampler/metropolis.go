package sampler

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"idsm/internal/model"
)

const (
	adaptEvery     = 50
	targetAccept   = 0.44
	initialScale   = 0.1
	maxScaleChange = 0.5
)

// Metropolis is the built-in engine.
type Metropolis struct{}

// Name implements Engine.
func (Metropolis) Name() string { return "metropolis" }

// Compile binds data to the graph and resolves the monitored columns.
func (Metropolis) Compile(g *model.Graph, data model.Data, c model.Constants, monitors []string) (Executable, error) {
	target, err := model.NewTarget(g, data, c)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", g.Variant(), err)
	}
	if len(monitors) == 0 {
		monitors = g.Monitors()
	}
	cols, err := target.Columns(monitors)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", g.Variant(), err)
	}
	return &metropolisExec{target: target, monitors: append([]string(nil), monitors...), columns: cols}, nil
}

type metropolisExec struct {
	target   *model.Target
	monitors []string
	columns  []string
}

func (m *metropolisExec) Columns() []string { return append([]string(nil), m.columns...) }

// Run performs spec.Iter sweeps, updating one coordinate at a time. Proposal
// scales adapt towards the optimal one-dimensional acceptance rate during
// burn-in only, so saved draws come from a fixed kernel.
func (m *metropolisExec) Run(ctx context.Context, chain int, inits model.Values, seed uint64, spec RunSpec) (Chain, error) {
	if err := spec.Validate(); err != nil {
		return Chain{}, err
	}
	z, err := m.target.Unconstrain(inits)
	if err != nil {
		return Chain{}, fmt.Errorf("chain %d: %w", chain, err)
	}
	lp := m.target.LogDensity(z)
	if math.IsInf(lp, -1) || math.IsNaN(lp) {
		return Chain{}, fmt.Errorf("chain %d: initial values have zero posterior density", chain)
	}

	rng := rand.New(rand.NewPCG(seed, uint64(chain)))
	dim := len(z)
	scale := make([]float64, dim)
	for i := range scale {
		scale[i] = initialScale
	}
	accepted := make([]int, dim)
	totalAccepted, totalProposed := 0, 0

	out := Chain{Index: chain, Seed: seed, Columns: m.Columns(), Draws: make([][]float64, 0, spec.Saved())}
	for iter := 0; iter < spec.Iter; iter++ {
		if err := ctx.Err(); err != nil {
			return Chain{}, err
		}
		for i := 0; i < dim; i++ {
			old := z[i]
			z[i] = old + scale[i]*rng.NormFloat64()
			next := m.target.LogDensity(z)
			if math.Log(rng.Float64()) < next-lp {
				lp = next
				accepted[i]++
				totalAccepted++
			} else {
				z[i] = old
			}
			totalProposed++
		}
		if iter < spec.Burnin && (iter+1)%adaptEvery == 0 {
			batch := float64(iter+1) / adaptEvery
			for i := range scale {
				rate := float64(accepted[i]) / adaptEvery
				step := math.Min(maxScaleChange, 1/math.Sqrt(batch))
				if rate > targetAccept {
					scale[i] *= math.Exp(step)
				} else {
					scale[i] *= math.Exp(-step)
				}
				accepted[i] = 0
			}
		}
		if iter >= spec.Burnin && (iter-spec.Burnin)%spec.Thin == 0 {
			out.Draws = append(out.Draws, m.target.Record(z, m.monitors, make([]float64, 0, len(out.Columns))))
		}
	}
	if totalProposed > 0 {
		out.Acceptance = float64(totalAccepted) / float64(totalProposed)
	}
	return out, nil
}
