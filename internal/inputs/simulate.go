package inputs

import (
	"fmt"

	"idsm/internal/model"
)

// Design describes the survey simulated for an origin seed when no bundle
// file is supplied.
type Design struct {
	Years          int     `yaml:"years" env:"YEARS"`
	Sites          []int   `yaml:"sites" env:"SITES" envSeparator:","`
	W              float64 `yaml:"w" env:"W"`
	TransectLength float64 `yaml:"transect_length" env:"TRANSECT_LENGTH"`
	AtRisk         int     `yaml:"at_risk" env:"AT_RISK"`
	TelemetryYears []int   `yaml:"telemetry_years" env:"TELEMETRY_YEARS" envSeparator:","`
}

// DefaultDesign is a small single-area survey.
func DefaultDesign() Design {
	return Design{
		Years:          5,
		Sites:          []int{6},
		W:              0.2,
		TransectLength: 4,
		AtRisk:         20,
		TelemetryYears: []int{1, 2},
	}
}

// Validate checks the design describes at least one site-year and, under a
// telemetry configuration, that every telemetry year precedes the last year.
func (d Design) Validate(cfg model.Config) error {
	if d.Years < 1 || len(d.Sites) == 0 {
		return fmt.Errorf("%w: simulation needs years and sites", ErrBundle)
	}
	for a, n := range d.Sites {
		if n < 1 {
			return fmt.Errorf("%w: simulated area %d has %d sites", ErrBundle, a+1, n)
		}
	}
	if !(d.W > 0) || !(d.TransectLength > 0) {
		return fmt.Errorf("%w: simulation needs positive W and transect length", ErrBundle)
	}
	if cfg.Telemetry {
		if d.AtRisk < 1 || len(d.TelemetryYears) == 0 {
			return fmt.Errorf("%w: telemetry simulation needs birds at risk and telemetry years", ErrBundle)
		}
		for _, t := range d.TelemetryYears {
			if t < 1 || t > d.Years-1 {
				return fmt.Errorf("%w: telemetry year %d outside [1, %d]", ErrBundle, t, d.Years-1)
			}
		}
	}
	return nil
}

// Simulate draws the dataset identified by originSeed from the model at its
// reference parameter values.
func Simulate(cfg model.Config, d Design, originSeed int64) (Bundle, error) {
	if err := d.Validate(cfg); err != nil {
		return Bundle{}, err
	}
	maxSites := 0
	for _, n := range d.Sites {
		maxSites = max(maxSites, n)
	}
	effort := model.NewArray(len(d.Sites), maxSites, d.Years)
	for i := range effort.Data {
		effort.Data[i] = d.TransectLength
	}
	design := model.Design{NYears: d.Years, NSites: d.Sites, W: d.W, L: &effort}
	sizing := model.Dims{NYears: d.Years, NAreas: len(d.Sites), NSites: d.Sites}
	if cfg.Telemetry {
		design.AtRisk = d.AtRisk
		design.YearRT = d.TelemetryYears
		sizing.NYearsRT = len(d.TelemetryYears)
	}
	if cfg.RodentCov {
		occ := model.NewArray(len(d.Sites), d.Years)
		for a := range d.Sites {
			for t := 0; t < d.Years; t++ {
				occ.Set(float64(t%4)/4, a, t)
			}
		}
		design.RodentOcc = &occ
	}
	g, err := model.Build(cfg, sizing)
	if err != nil {
		return Bundle{}, err
	}
	truth := model.ReferenceValues(g, d.W)
	data, consts, dims, err := model.Simulate(cfg, design, truth, uint64(originSeed))
	if err != nil {
		return Bundle{}, err
	}
	return FromModel(data, consts, dims), nil
}
