package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Design fixes the survey effort used to simulate a dataset.
type Design struct {
	NYears int
	NSites []int
	// W is the truncation distance.
	W float64
	// L is transect length per [area, site, year]; nil means unit length.
	L *Array
	// RodentOcc is the rodent covariate per [area, year]; required when the
	// configuration uses it.
	RodentOcc *Array
	// AtRisk is the number of tagged birds per known-fate row.
	AtRisk int
	// YearRT lists the 1-based survival intervals with telemetry.
	YearRT []int
}

// Simulate draws a synthetic dataset from the model with parameters truth.
// Every detected bird contributes one distance, and each site-year with
// adults counted contributes one recruitment record.
func Simulate(cfg Config, design Design, truth Values, seed uint64) (Data, Constants, Dims, error) {
	dims := Dims{NYears: design.NYears, NAreas: len(design.NSites), NSites: design.NSites, NYearsRT: len(design.YearRT)}
	if !cfg.Telemetry {
		dims.NYearsRT = 0
	}
	if cfg.Telemetry {
		for _, t := range design.YearRT {
			if t < 1 || t > design.NYears-1 {
				return Data{}, Constants{}, Dims{}, ConfigError{
					Field:  "year_rt",
					Reason: fmt.Sprintf("telemetry interval %d outside [1, %d]", t, design.NYears-1),
				}
			}
		}
	}
	g, err := Build(cfg, dims)
	if err != nil {
		return Data{}, Constants{}, Dims{}, err
	}
	nA, nJ, nT := dims.NAreas, dims.MaxSites(), dims.NYears

	c := Constants{W: design.W}
	if design.L != nil {
		c.L = design.L.Clone()
	} else {
		c.L = NewArray(nA, nJ, nT)
		for i := range c.L.Data {
			c.L.Data[i] = 1
		}
	}
	var data Data
	if cfg.RodentCov {
		if design.RodentOcc == nil {
			return Data{}, Constants{}, Dims{}, ConfigError{Field: "rodent_cov", Reason: "simulation needs RodentOcc"}
		}
		data.RodentOcc = design.RodentOcc.Clone()
	}
	state, err := g.Evaluate(data, c, truth)
	if err != nil {
		return Data{}, Constants{}, Dims{}, fmt.Errorf("simulate: %w", err)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	p, nExp, sigma := state[NodeP], state[NodeNExp], state[NodeSigma]

	data.NALineYear = NewArray(nA, NAgeC, nJ, nT)
	for a := 0; a < nA; a++ {
		for t := 0; t < nT; t++ {
			detected := 0
			for j := 0; j < dims.NSites[a]; j++ {
				for x := 0; x < NAgeC; x++ {
					n := drawPoisson(rng, p.At(a, t)*nExp.At(a, x, j, t))
					data.NALineYear.Set(float64(n), a, x, j, t)
					detected += n
				}
				adults := data.NALineYear.At(a, 1, j, t)
				if adults > 0 {
					r := state[NodeRYear].At(a, t)
					data.SumR = append(data.SumR, float64(drawPoisson(rng, r*adults)))
					c.SumAd = append(c.SumAd, adults)
					c.SumRYear = append(c.SumRYear, t+1)
					c.SumRArea = append(c.SumRArea, a+1)
				}
			}
			for k := 0; k < detected; k++ {
				data.Y = append(data.Y, drawHalfNormal(rng, sigma.At(a, t), design.W))
				c.YearObs = append(c.YearObs, t+1)
				c.AreaObs = append(c.AreaObs, a+1)
			}
		}
	}

	if cfg.Telemetry {
		data.Survs1 = NewArray(len(design.YearRT), 2)
		data.Survs2 = NewArray(len(design.YearRT), 2)
		for k, t := range design.YearRT {
			at := design.AtRisk
			alive := drawBinomial(rng, at, state[NodeS1].Data[t-1])
			data.Survs1.Set(float64(at), k, 0)
			data.Survs1.Set(float64(alive), k, 1)
			data.Survs2.Set(float64(alive), k, 0)
			data.Survs2.Set(float64(drawBinomial(rng, alive, state[NodeS2].Data[t-1])), k, 1)
		}
		c.YearRT = append([]int(nil), design.YearRT...)
	}

	dims.NObs = len(data.Y)
	dims.NSumRObs = len(data.SumR)
	return data, c, dims, nil
}

func drawPoisson(rng *rand.Rand, lambda float64) int {
	if !(lambda > 0) {
		return 0
	}
	return int(distuv.Poisson{Lambda: lambda, Src: rng}.Rand())
}

func drawBinomial(rng *rand.Rand, n int, p float64) int {
	switch {
	case n <= 0 || !(p > 0):
		return 0
	case p >= 1:
		return n
	}
	return int(distuv.Binomial{N: float64(n), P: p, Src: rng}.Rand())
}

// drawHalfNormal samples |N(0, sigma)| conditioned on being at most w.
func drawHalfNormal(rng *rand.Rand, sigma, w float64) float64 {
	normal := distuv.Normal{Mu: 0, Sigma: sigma, Src: rng}
	for {
		y := math.Abs(normal.Rand())
		if y <= w {
			return y
		}
	}
}
