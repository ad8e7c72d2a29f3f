package model

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func singleDims(years, sites int) Dims {
	return Dims{NYears: years, NAreas: 1, NSites: []int{sites}, NObs: 3, NSumRObs: 2}
}

func TestBuildIdempotent(t *testing.T) {
	cfg := Config{SurvVarT: true, RodentCov: true, Telemetry: true, TelemetryArea: 1, PerFemale: true}
	dims := singleDims(5, 4)
	dims.NYearsRT = 2

	first, err := Build(cfg, dims)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := Build(cfg, dims)
	if err != nil {
		t.Fatalf("build again: %v", err)
	}
	if diff := cmp.Diff(first.Nodes(), second.Nodes()); diff != "" {
		t.Fatalf("graphs differ (-first +second):\n%s", diff)
	}
	if first.Variant() != second.Variant() {
		t.Fatalf("variant mismatch: %s vs %s", first.Variant(), second.Variant())
	}
}

func TestNodesReturnsCopies(t *testing.T) {
	g, err := Build(Config{}, singleDims(3, 2))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	nodes := g.Nodes()
	for i := range nodes {
		if nodes[i].Prior != nil {
			nodes[i].Prior.Upper = -1
		}
	}
	n, _ := g.Node(NodeMuR)
	if n.Prior.Upper != 15 {
		t.Fatalf("graph mutated through Nodes(): upper=%v", n.Prior.Upper)
	}
}

func TestDisabledSubModelsAreOmitted(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		dims    Dims
		absent  []string
		present []string
	}{
		{
			name:    "no rodent covariate",
			cfg:     Config{},
			dims:    singleDims(3, 2),
			absent:  []string{NodeBetaRR, NodeSigmaTS, NodeEpsTS, NodeMuS1, NodeS1, NodeS2, NodeSurvs1, NodeSurvs2},
			present: []string{NodeMuS, NodeS, NodeRYear, NodeDensity},
		},
		{
			name:    "rodent covariate",
			cfg:     Config{RodentCov: true},
			dims:    singleDims(3, 2),
			present: []string{NodeBetaRR},
		},
		{
			name:    "time varying survival",
			cfg:     Config{SurvVarT: true},
			dims:    singleDims(3, 2),
			present: []string{NodeSigmaTS, NodeEpsTS},
		},
		{
			name:    "single year",
			cfg:     Config{SurvVarT: true},
			dims:    singleDims(1, 2),
			absent:  []string{NodeMuS, NodeS, NodeSigmaTS, NodeEpsTS},
			present: []string{NodeDensity, NodeMuD1},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, err := Build(tc.cfg, tc.dims)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			for _, name := range tc.absent {
				if g.Has(name) {
					t.Fatalf("expected %s to be omitted", name)
				}
				for _, n := range g.Nodes() {
					for _, parent := range n.Parents {
						if parent == name {
							t.Fatalf("%s references omitted node %s", n.Name, name)
						}
					}
				}
			}
			for _, name := range tc.present {
				if !g.Has(name) {
					t.Fatalf("expected %s to be declared", name)
				}
			}
		})
	}
}

func TestPriorBoundsOnRandomEffectSDs(t *testing.T) {
	g, err := Build(Config{SurvVarT: true}, singleDims(4, 2))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := map[string]float64{NodeSigmaTDD: 20, NodeSigmaTR: 5, NodeSigmaTS: 5, NodeSigmaD: 20}
	for name, upper := range want {
		n, ok := g.Node(name)
		if !ok {
			t.Fatalf("missing %s", name)
		}
		if n.Prior.Family != Uniform || n.Prior.Lower != 0 || n.Prior.Upper != upper {
			t.Fatalf("%s prior = %+v, want dunif(0, %v)", name, *n.Prior, upper)
		}
	}
}

func TestSharedRandomEffectsDropAreaIndex(t *testing.T) {
	dims := Dims{NYears: 4, NAreas: 3, NSites: []int{2, 3, 1}}
	shared, err := Build(Config{MultiArea: true, SharedRE: true, SurvVarT: true}, dims)
	if err != nil {
		t.Fatalf("build shared: %v", err)
	}
	perArea, err := Build(Config{MultiArea: true, SurvVarT: true}, dims)
	if err != nil {
		t.Fatalf("build per area: %v", err)
	}
	if got := shared.Shape(NodeEpsTR); !cmp.Equal(got, []int{4}) {
		t.Fatalf("shared epsT.R shape %v", got)
	}
	if got := perArea.Shape(NodeEpsTS); !cmp.Equal(got, []int{3, 3}) {
		t.Fatalf("per-area epsT.S shape %v", got)
	}
	if n := len(perArea.Elements(NodeEpsD1)); n != 6 {
		t.Fatalf("expected 6 active eps.D1 elements, got %d", n)
	}
}

func TestBuildRejectsInconsistentConfig(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		dims  Dims
		field string
	}{
		{"telemetry without reference area", Config{Telemetry: true}, Dims{NYears: 3, NAreas: 1, NSites: []int{1}, NYearsRT: 2}, "telemetry_area"},
		{"telemetry area out of range", Config{Telemetry: true, TelemetryArea: 2}, Dims{NYears: 3, NAreas: 1, NSites: []int{1}, NYearsRT: 2}, "telemetry_area"},
		{"telemetry without data", Config{Telemetry: true, TelemetryArea: 1}, Dims{NYears: 3, NAreas: 1, NSites: []int{1}}, "telemetry"},
		{"telemetry single year", Config{Telemetry: true, TelemetryArea: 1}, Dims{NYears: 1, NAreas: 1, NSites: []int{1}, NYearsRT: 1}, "telemetry"},
		{"data without telemetry", Config{}, Dims{NYears: 3, NAreas: 1, NSites: []int{1}, NYearsRT: 1}, "telemetry"},
		{"single area flag with two areas", Config{}, Dims{NYears: 3, NAreas: 2, NSites: []int{1, 1}}, "multi_area"},
		{"shared RE single area", Config{SharedRE: true}, Dims{NYears: 3, NAreas: 1, NSites: []int{1}}, "shared_re"},
		{"no years", Config{}, Dims{NAreas: 1, NSites: []int{1}}, "N_years"},
		{"sites mismatch", Config{MultiArea: true}, Dims{NYears: 2, NAreas: 2, NSites: []int{1}}, "N_sites"},
		{"bad female fraction", Config{PerFemale: true, FemaleFraction: 2}, singleDims(2, 1), "female_fraction"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.cfg, tc.dims)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var ce ConfigError
			if !errors.As(err, &ce) || ce.Field != tc.field {
				t.Fatalf("expected field %s, got %v", tc.field, err)
			}
		})
	}
}

func TestVariantTags(t *testing.T) {
	if got := (Config{}).Variant(); got != "single/perAd" {
		t.Fatalf("unexpected variant %s", got)
	}
	cfg := Config{MultiArea: true, SharedRE: true, SurvVarT: true, RodentCov: true, Telemetry: true, PerFemale: true}
	if got := cfg.Variant(); got != "multi/sharedRE/survVarT/rodent/telemetry/perF" {
		t.Fatalf("unexpected variant %s", got)
	}
}

func TestMonitorsIncludeDerivedQuantities(t *testing.T) {
	g, err := Build(Config{Telemetry: true, TelemetryArea: 1}, Dims{NYears: 3, NAreas: 1, NSites: []int{2}, NYearsRT: 1})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := map[string]bool{}
	for _, m := range g.Monitors() {
		got[m] = true
	}
	for _, name := range []string{NodeMuR, NodeDensity, NodeNTotExp, NodeS1, NodeS2, NodeP} {
		if !got[name] {
			t.Fatalf("monitor list missing %s: %v", name, g.Monitors())
		}
	}
	for _, name := range g.DataNodes() {
		if got[name] {
			t.Fatalf("data node %s should not be monitored", name)
		}
	}
}
