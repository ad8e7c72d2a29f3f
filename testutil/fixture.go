package testutil

import (
	"testing"

	"idsm/internal/model"
)

// Dataset is a simulated model input together with the graph it fits.
type Dataset struct {
	Graph  *model.Graph
	Data   model.Data
	Consts model.Constants
	Truth  model.Values
}

// Simulate builds a small synthetic dataset for cfg: W = 0.2 km, 4 km
// transects, telemetry on the first two survival intervals and a cycling
// rodent covariate when the configuration asks for them.
func Simulate(t testing.TB, cfg model.Config, nYears int, sites []int, seed uint64) Dataset {
	t.Helper()
	maxSites := 0
	for _, n := range sites {
		if n > maxSites {
			maxSites = n
		}
	}
	effort := model.NewArray(len(sites), maxSites, nYears)
	for i := range effort.Data {
		effort.Data[i] = 4
	}
	design := model.Design{NYears: nYears, NSites: sites, W: 0.2, L: &effort}
	sizing := model.Dims{NYears: nYears, NAreas: len(sites), NSites: sites}
	if cfg.Telemetry {
		design.AtRisk = 20
		design.YearRT = []int{1, 2}
		sizing.NYearsRT = 2
	}
	if cfg.RodentCov {
		occ := model.NewArray(len(sites), nYears)
		for i := range occ.Data {
			occ.Data[i] = float64(i%4) / 4
		}
		design.RodentOcc = &occ
	}
	pg, err := model.Build(cfg, sizing)
	if err != nil {
		t.Fatalf("build sizing graph: %v", err)
	}
	truth := model.ReferenceValues(pg, design.W)
	data, consts, dims, err := model.Simulate(cfg, design, truth, seed)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	g, err := model.Build(cfg, dims)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return Dataset{Graph: g, Data: data, Consts: consts, Truth: truth}
}
