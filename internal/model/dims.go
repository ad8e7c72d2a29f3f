package model

import "fmt"

// NAgeC is the number of age classes: 1 juvenile, 2 adult.
const NAgeC = 2

// Dims binds every dimension used by graph construction, data assembly and
// summarisation.
type Dims struct {
	NYears   int   `json:"N_years"`
	NAreas   int   `json:"N_areas"`
	NSites   []int `json:"N_sites"` // per area
	NObs     int   `json:"N_obs"`
	NSumRObs int   `json:"N_sumR_obs"`
	NYearsRT int   `json:"N_years_RT"`
}

// MaxSites is the largest per-area site count; arrays indexed by site use it
// as their extent.
func (d Dims) MaxSites() int {
	m := 0
	for _, n := range d.NSites {
		if n > m {
			m = n
		}
	}
	return m
}

// SurvYears is the number of survival intervals (N_years - 1, never negative).
func (d Dims) SurvYears() int {
	if d.NYears < 2 {
		return 0
	}
	return d.NYears - 1
}

func (d Dims) validate() error {
	if d.NYears < 1 {
		return ConfigError{Field: "N_years", Reason: fmt.Sprintf("must be >= 1, got %d", d.NYears)}
	}
	if d.NAreas < 1 {
		return ConfigError{Field: "N_areas", Reason: fmt.Sprintf("must be >= 1, got %d", d.NAreas)}
	}
	if len(d.NSites) != d.NAreas {
		return ConfigError{Field: "N_sites", Reason: fmt.Sprintf("%d entries for %d areas", len(d.NSites), d.NAreas)}
	}
	for a, n := range d.NSites {
		if n < 1 {
			return ConfigError{Field: "N_sites", Reason: fmt.Sprintf("area %d has %d sites", a+1, n)}
		}
	}
	if d.NObs < 0 || d.NSumRObs < 0 || d.NYearsRT < 0 {
		return ConfigError{Field: "dims", Reason: "observation counts must be non-negative"}
	}
	return nil
}

// Dim names one axis of a node.
type Dim string

const (
	DimArea   Dim = "N_areas"
	DimAge    Dim = "N_ageC"
	DimSite   Dim = "N_sites"
	DimYear   Dim = "N_years"
	DimSurv   Dim = "N_years-1"
	DimObs    Dim = "N_obs"
	DimSumR   Dim = "N_sumR_obs"
	DimYearRT Dim = "N_years_RT"
	DimPair   Dim = "2"
)

// extent resolves a dimension name to its size.
func (d Dims) extent(dim Dim) int {
	switch dim {
	case DimArea:
		return d.NAreas
	case DimAge:
		return NAgeC
	case DimSite:
		return d.MaxSites()
	case DimYear:
		return d.NYears
	case DimSurv:
		return d.SurvYears()
	case DimObs:
		return d.NObs
	case DimSumR:
		return d.NSumRObs
	case DimYearRT:
		return d.NYearsRT
	case DimPair:
		return 2
	default:
		return 0
	}
}
