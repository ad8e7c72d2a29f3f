// Package model defines the integrated distance-sampling model: an immutable
// graph of stochastic and deterministic nodes relating latent age-structured
// densities, vital rates and the detection process to the observed data.
package model

import (
	"fmt"
	"strings"
)

// DefaultFemaleFraction is the share of adults assumed female when
// recruitment is expressed per adult female (a 1:1 sex ratio).
const DefaultFemaleFraction = 0.5

// Config selects one of the closed set of graph variants. It is a plain value:
// the graph built from it never changes afterwards.
type Config struct {
	// SharedRE shares the year random effects (and their SDs) across areas.
	SharedRE bool `yaml:"shared_re" json:"shared_re" env:"SHARED_RE"`
	// SurvVarT enables year random effects on annual survival.
	SurvVarT bool `yaml:"surv_var_t" json:"surv_var_t" env:"SURV_VAR_T"`
	// RodentCov adds the rodent occupancy covariate to recruitment.
	RodentCov bool `yaml:"rodent_cov" json:"rodent_cov" env:"RODENT_COV"`
	// Telemetry adds the known-fate likelihoods for the reference area.
	Telemetry bool `yaml:"telemetry" json:"telemetry" env:"TELEMETRY"`
	// PerFemale expresses recruitment per adult female instead of per adult.
	PerFemale bool `yaml:"per_female" json:"per_female" env:"PER_FEMALE"`
	// FemaleFraction is used only when PerFemale is set; zero means
	// DefaultFemaleFraction.
	FemaleFraction float64 `yaml:"female_fraction" json:"female_fraction,omitempty" env:"FEMALE_FRACTION"`
	// MultiArea allows more than one area.
	MultiArea bool `yaml:"multi_area" json:"multi_area" env:"MULTI_AREA"`
	// TelemetryArea is the 1-based area the known-fate data belong to.
	TelemetryArea int `yaml:"telemetry_area" json:"telemetry_area,omitempty" env:"TELEMETRY_AREA"`
}

// femaleFraction resolves the effective female share of adults.
func (c Config) femaleFraction() float64 {
	if !c.PerFemale {
		return 1
	}
	if c.FemaleFraction == 0 {
		return DefaultFemaleFraction
	}
	return c.FemaleFraction
}

// Variant returns a stable tag naming the graph variant selected by c.
func (c Config) Variant() string {
	parts := []string{"single"}
	if c.MultiArea {
		parts[0] = "multi"
	}
	if c.SharedRE {
		parts = append(parts, "sharedRE")
	}
	if c.SurvVarT {
		parts = append(parts, "survVarT")
	}
	if c.RodentCov {
		parts = append(parts, "rodent")
	}
	if c.Telemetry {
		parts = append(parts, "telemetry")
	}
	if c.PerFemale {
		parts = append(parts, "perF")
	} else {
		parts = append(parts, "perAd")
	}
	return strings.Join(parts, "/")
}

func (c Config) validate(d Dims) error {
	if c.PerFemale && (c.FemaleFraction < 0 || c.FemaleFraction > 1) {
		return ConfigError{Field: "female_fraction", Reason: fmt.Sprintf("%v outside [0,1]", c.FemaleFraction)}
	}
	if !c.MultiArea && d.NAreas != 1 {
		return ConfigError{Field: "multi_area", Reason: fmt.Sprintf("single-area model given %d areas", d.NAreas)}
	}
	if c.SharedRE && !c.MultiArea {
		return ConfigError{Field: "shared_re", Reason: "shared random effects require a multi-area model"}
	}
	if c.Telemetry {
		if c.TelemetryArea < 1 || c.TelemetryArea > d.NAreas {
			return ConfigError{Field: "telemetry_area", Reason: fmt.Sprintf("reference area %d does not match any of %d areas", c.TelemetryArea, d.NAreas)}
		}
		if d.NYears < 2 {
			return ConfigError{Field: "telemetry", Reason: "known-fate survival needs at least two years"}
		}
		if d.NYearsRT < 1 {
			return ConfigError{Field: "telemetry", Reason: "telemetry enabled without known-fate data"}
		}
	} else if d.NYearsRT > 0 {
		return ConfigError{Field: "telemetry", Reason: "known-fate data supplied but telemetry disabled"}
	}
	return nil
}
