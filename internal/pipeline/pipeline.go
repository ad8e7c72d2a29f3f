// Package pipeline runs one model fit: build the graph for a configuration,
// compile it with the selected engine, fan the chains out and combine their
// draws once every chain has finished.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"idsm/internal/logging"
	"idsm/internal/metrics"
	"idsm/internal/model"
	"idsm/internal/posterior"
	"idsm/internal/sampler"
)

const (
	// DefaultChains is the number of chains run when a request leaves it unset.
	DefaultChains = 3
	// DefaultEngine names the built-in sampler.
	DefaultEngine = "metropolis"

	initStream = 1000
)

// Request describes one run of one dataset.
type Request struct {
	Config     model.Config
	Data       model.Data
	Consts     model.Constants
	Dims       model.Dims
	OriginSeed int64
	RunSeed    int64
	Chains     int
	Spec       sampler.RunSpec
	// TestRun replaces Spec with sampler.TestRun().
	TestRun  bool
	Engine   string
	Monitors []string
}

// Result is the combined output of a run.
type Result struct {
	Graph    *model.Graph
	Draws    posterior.Draws
	Duration time.Duration
}

// Artifacts renders the result into the given archive formats.
func (r Result) Artifacts(formats ...posterior.Format) ([]posterior.Artifact, error) {
	return posterior.Materialize(r.Draws, r.Draws.Axes, formats...)
}

// Runner executes requests. The zero value is not usable; call New.
type Runner struct {
	logger  logging.Logger
	metrics *metrics.Recorder
	lookup  func(string) (sampler.Engine, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for chain progress.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records per-chain acceptance rates.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithEngines overrides engine resolution.
func WithEngines(lookup func(string) (sampler.Engine, error)) Option {
	return func(r *Runner) {
		if lookup != nil {
			r.lookup = lookup
		}
	}
}

// New constructs a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{logger: logging.Noop(), lookup: sampler.Lookup}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// effectiveSpec resolves the run spec, honouring test-run mode.
func (req Request) effectiveSpec() sampler.RunSpec {
	if req.TestRun {
		return sampler.TestRun()
	}
	return req.Spec
}

// Run builds, compiles and samples. Chains share the run seed and differ by
// chain index; each chain draws its own initial values. Draws are combined
// only after all chains succeed, and the first chain error cancels the rest.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	chains := req.Chains
	if chains == 0 {
		chains = DefaultChains
	}
	if chains < 0 {
		return Result{}, fmt.Errorf("pipeline: chains must be positive, got %d", chains)
	}
	spec := req.effectiveSpec()
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}
	g, err := model.Build(req.Config, req.Dims)
	if err != nil {
		return Result{}, fmt.Errorf("build graph: %w", err)
	}
	name := req.Engine
	if name == "" {
		name = DefaultEngine
	}
	engine, err := r.lookup(name)
	if err != nil {
		return Result{}, err
	}
	exec, err := engine.Compile(g, req.Data, req.Consts, req.Monitors)
	if err != nil {
		return Result{}, err
	}
	r.logger.Info("run started",
		"origin_seed", req.OriginSeed, "run_seed", req.RunSeed,
		"variant", g.Variant(), "engine", name, "chains", chains,
		"iter", spec.Iter, "burnin", spec.Burnin, "thin", spec.Thin)

	results := make([]sampler.Chain, chains)
	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < chains; i++ {
		eg.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(req.RunSeed), initStream+uint64(i)))
			inits := model.Inits(g, req.Data, req.Consts, rng)
			chain, err := exec.Run(egCtx, i, inits, uint64(req.RunSeed), spec)
			if err != nil {
				return fmt.Errorf("chain %d: %w", i, err)
			}
			results[i] = chain
			r.metrics.Acceptance(i, chain.Acceptance)
			r.logger.Debug("chain finished", "chain", i, "draws", len(chain.Draws), "acceptance", chain.Acceptance)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("run interrupted", "origin_seed", req.OriginSeed, "run_seed", req.RunSeed, "error", err)
		}
		return Result{}, err
	}
	draws, err := posterior.Combine(req.OriginSeed, req.RunSeed, g.Variant(), results)
	if err != nil {
		return Result{}, err
	}
	draws = draws.WithAxes(posterior.AxesOf(g))
	elapsed := time.Since(start)
	r.logger.Info("run finished", "origin_seed", req.OriginSeed, "run_seed", req.RunSeed, "elapsed", elapsed)
	return Result{Graph: g, Draws: draws, Duration: elapsed}, nil
}
