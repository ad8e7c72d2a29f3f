package inputs

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"idsm/internal/model"
	"idsm/testutil"
)

func TestBundleRoundTrip(t *testing.T) {
	cfg := model.Config{SurvVarT: true, RodentCov: true, Telemetry: true, TelemetryArea: 1}
	ds := testutil.Simulate(t, cfg, 4, []int{3}, 5)
	b := FromModel(ds.Data, ds.Consts, ds.Graph.Dims())

	buf := &bytes.Buffer{}
	if err := Write(buf, b); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := Load(buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	data, consts, dims, err := loaded.Model()
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	if diff := cmp.Diff(ds.Graph.Dims(), dims); diff != "" {
		t.Fatalf("dims mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ds.Data, data, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ds.Consts, consts, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("constants mismatch (-want +got):\n%s", diff)
	}
	g, err := model.Build(cfg, dims)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := model.NewTarget(g, data, consts); err != nil {
		t.Fatalf("target from loaded bundle: %v", err)
	}
}

func TestBundleOmitsDisabledSubmodels(t *testing.T) {
	ds := testutil.Simulate(t, model.Config{}, 3, []int{2}, 1)
	b := FromModel(ds.Data, ds.Consts, ds.Graph.Dims())
	dataKeys, constKeys := b.Keys()
	for _, k := range append(dataKeys, constKeys...) {
		if k == KeySurvs1 || k == KeyRodentOcc || k == KeyYearRT {
			t.Fatalf("unexpected key %s for plain configuration", k)
		}
	}
	_, _, dims, err := b.Model()
	if err != nil || dims.NYearsRT != 0 {
		t.Fatalf("model: %v %+v", err, dims)
	}
}

func TestBundleValidation(t *testing.T) {
	ds := testutil.Simulate(t, model.Config{}, 2, []int{1}, 1)
	fresh := func() Bundle { return FromModel(ds.Data, ds.Consts, ds.Graph.Dims()) }

	cases := map[string]func(b *Bundle){
		"shared key":       func(b *Bundle) { b.Constants[KeyY] = model.Scalar(1) },
		"missing data":     func(b *Bundle) { delete(b.Data, KeySumR) },
		"missing constant": func(b *Bundle) { delete(b.Constants, KeyW) },
		"partial telemetry": func(b *Bundle) {
			b.Data[KeySurvs1] = model.NewArray(1, 2)
		},
		"bad shape": func(b *Bundle) {
			b.Constants[KeyL] = model.Array{Shape: []int{2, 2}, Data: []float64{1}}
		},
		"fractional index": func(b *Bundle) { b.Constants[KeyNSites] = model.Vector([]float64{1.5}) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := fresh()
			mutate(&b)
			if _, _, _, err := b.Model(); !errors.Is(err, ErrBundle) {
				t.Fatalf("expected ErrBundle, got %v", err)
			}
		})
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	if _, err := Load(strings.NewReader(`{"data":{},"constants":{},"extra":1}`)); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestFileRoundTrip(t *testing.T) {
	ds := testutil.Simulate(t, model.Config{}, 2, []int{2}, 3)
	b := FromModel(ds.Data, ds.Consts, ds.Graph.Dims())
	path := filepath.Join(t.TempDir(), "nested", "bundle.json")
	if err := WriteFile(path, b); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if diff := cmp.Diff(b, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("bundle mismatch (-want +got):\n%s", diff)
	}
}

func TestSimulateIsKeyedByOriginSeed(t *testing.T) {
	cfg := model.Config{Telemetry: true, TelemetryArea: 1, RodentCov: true}
	a, err := Simulate(cfg, DefaultDesign(), 17)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	b, err := Simulate(cfg, DefaultDesign(), 17)
	if err != nil {
		t.Fatalf("simulate again: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same origin seed gave different bundles:\n%s", diff)
	}
	c, err := Simulate(cfg, DefaultDesign(), 18)
	if err != nil {
		t.Fatalf("simulate other: %v", err)
	}
	if cmp.Equal(a, c) {
		t.Fatalf("different origin seeds gave identical bundles")
	}
	if _, _, _, err := a.Model(); err != nil {
		t.Fatalf("simulated bundle invalid: %v", err)
	}
}

func TestSimulateRejectsEmptyDesign(t *testing.T) {
	if _, err := Simulate(model.Config{}, Design{}, 1); !errors.Is(err, ErrBundle) {
		t.Fatalf("expected ErrBundle, got %v", err)
	}
}

func TestSimulateRejectsTelemetryYearsOutsideSurvey(t *testing.T) {
	cfg := model.Config{Telemetry: true, TelemetryArea: 1, SurvVarT: true}
	d := DefaultDesign()
	d.Years = 2
	if _, err := Simulate(cfg, d, 1); !errors.Is(err, ErrBundle) {
		t.Fatalf("expected ErrBundle, got %v", err)
	}
	if err := d.Validate(model.Config{SurvVarT: true}); err != nil {
		t.Fatalf("telemetry years ignored without telemetry, got %v", err)
	}
	d.TelemetryYears = []int{1}
	if _, err := Simulate(cfg, d, 1); err != nil {
		t.Fatalf("simulate with in-range telemetry year: %v", err)
	}
}
