// Package sampler defines the boundary to the MCMC engine: a compiled model
// is run from initial values and a seed and returns posterior draws for the
// monitored nodes. The built-in engine is an adaptive component-wise
// random-walk Metropolis sampler on the unconstrained scale.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"idsm/internal/model"
)

// ErrUnknownEngine is returned by Lookup for unregistered engine names.
var ErrUnknownEngine = errors.New("sampler: unknown engine")

// RunSpec fixes chain length.
type RunSpec struct {
	Iter   int `yaml:"iter" json:"iter" env:"ITER"`
	Burnin int `yaml:"burnin" json:"burnin" env:"BURNIN"`
	Thin   int `yaml:"thin" json:"thin" env:"THIN"`
}

// TestRun is the reduced low-fidelity spec: a handful of iterations with no
// burn-in or thinning, enough to exercise the full graph.
func TestRun() RunSpec { return RunSpec{Iter: 10, Burnin: 0, Thin: 1} }

// Validate checks the run settings describe at least one saved draw.
func (s RunSpec) Validate() error {
	switch {
	case s.Iter < 1:
		return fmt.Errorf("sampler: iter must be positive, got %d", s.Iter)
	case s.Burnin < 0 || s.Burnin >= s.Iter:
		return fmt.Errorf("sampler: burnin %d must be in [0, iter=%d)", s.Burnin, s.Iter)
	case s.Thin < 1:
		return fmt.Errorf("sampler: thin must be positive, got %d", s.Thin)
	}
	return nil
}

// Saved is the number of draws a chain keeps.
func (s RunSpec) Saved() int {
	kept := s.Iter - s.Burnin
	return (kept + s.Thin - 1) / s.Thin
}

// Chain holds the ordered posterior draws of one chain: one row per saved
// iteration, one column per monitored element.
type Chain struct {
	Index      int         `json:"chain"`
	Seed       uint64      `json:"seed"`
	Columns    []string    `json:"columns"`
	Draws      [][]float64 `json:"draws"`
	Acceptance float64     `json:"acceptance"`
}

// Engine compiles a model graph with its data into something runnable.
type Engine interface {
	Name() string
	Compile(g *model.Graph, data model.Data, c model.Constants, monitors []string) (Executable, error)
}

// Executable runs chains of a compiled model. Implementations must return
// identical draws for identical inits, seed and spec.
type Executable interface {
	Columns() []string
	Run(ctx context.Context, chain int, inits model.Values, seed uint64, spec RunSpec) (Chain, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Engine{}
)

// Register makes an engine available to Lookup.
func Register(e Engine) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[e.Name()] = e
}

// Lookup returns the registered engine with the given name.
func Lookup(name string) (Engine, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %v)", ErrUnknownEngine, name, engineNames())
	}
	return e, nil
}

func engineNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(Metropolis{})
}
