package model

import (
	"fmt"
	"math"
)

// DetectionProbability caps the effective strip width at the truncation
// distance so the result stays in (0, 1].
func DetectionProbability(esw, w float64) float64 {
	return math.Min(esw, w) / w
}

// EffectiveStripWidth is sqrt(pi*sigma^2/2) for a half-normal detection
// function with scale sigma.
func EffectiveStripWidth(sigma float64) float64 {
	return math.Sqrt(math.Pi * sigma * sigma / 2)
}

// Recruits converts an adult density into juvenile density for recruitment
// rate r. Per-female recruitment applies only to the female share of adults.
func (c Config) Recruits(adults, r float64) float64 {
	if c.PerFemale {
		return adults * c.femaleFraction() * r
	}
	return adults * r
}

// Survivors projects last year's juvenile and adult densities into this
// year's adults.
func Survivors(juveniles, adults, s float64) float64 {
	return (juveniles + adults) * s
}

func logit(p float64) float64 { return math.Log(p / (1 - p)) }

func expit(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// re reads a year random effect that is either shared ([t]) or per area
// ([a, t]).
func (g *Graph) re(v Values, name string, a, t int) float64 {
	arr := v[name]
	if g.cfg.SharedRE {
		return arr.Data[t]
	}
	return arr.At(a, t)
}

// CheckValues verifies that v carries every free parameter with the graph's
// shape.
func (g *Graph) CheckValues(v Values) error {
	for _, name := range g.Parameters() {
		arr, ok := v[name]
		if !ok {
			return shapeErrorf("missing value for %s", name)
		}
		if !arr.SameShape(g.Shape(name)) {
			return shapeErrorf("%s has shape %v, want %v", name, arr.Shape, g.Shape(name))
		}
	}
	return nil
}

// Evaluate computes every deterministic node from the free parameters in v.
// Year-1 densities come only from the initial-density priors; later years
// come only from the forward projection.
func (g *Graph) Evaluate(data Data, c Constants, v Values) (Values, error) {
	if err := g.CheckValues(v); err != nil {
		return nil, err
	}
	if want := []int{g.dims.NAreas, g.dims.MaxSites(), g.dims.NYears}; !c.L.SameShape(want) {
		return nil, shapeErrorf("L has shape %v, want %v", c.L.Shape, want)
	}
	if g.cfg.RodentCov && !data.RodentOcc.SameShape([]int{g.dims.NAreas, g.dims.NYears}) {
		return nil, shapeErrorf("RodentOcc has shape %v", data.RodentOcc.Shape)
	}
	out := make(Values, 12)
	g.evaluate(data, c, v, out)
	return out, nil
}

func (g *Graph) evaluate(data Data, c Constants, v Values, out Values) {
	d := g.dims
	nA, nT, nJ, nS := d.NAreas, d.NYears, d.MaxSites(), d.SurvYears()

	sigma := NewArray(nA, nT)
	esw := NewArray(nA, nT)
	p := NewArray(nA, nT)
	muDD := v[NodeMuDD]
	for a := 0; a < nA; a++ {
		for t := 0; t < nT; t++ {
			s := math.Exp(muDD.Data[a] + g.re(v, NodeEpsTDD, a, t))
			e := EffectiveStripWidth(s)
			sigma.Set(s, a, t)
			esw.Set(e, a, t)
			p.Set(DetectionProbability(e, c.W), a, t)
		}
	}
	out[NodeSigma], out[NodeESW], out[NodeP] = sigma, esw, p

	rYear := NewArray(nA, nT)
	muR := v[NodeMuR]
	for a := 0; a < nA; a++ {
		for t := 0; t < nT; t++ {
			lr := math.Log(muR.Data[a]) + g.re(v, NodeEpsTR, a, t)
			if g.cfg.RodentCov {
				lr += v[NodeBetaRR].Data[a] * data.RodentOcc.At(a, t)
			}
			rYear.Set(math.Exp(lr), a, t)
		}
	}
	out[NodeRYear] = rYear

	var surv Array
	if nS > 0 {
		surv = NewArray(nA, nS)
		muS := v[NodeMuS]
		for a := 0; a < nA; a++ {
			for t := 0; t < nS; t++ {
				if !g.cfg.SurvVarT {
					surv.Set(muS.Data[a], a, t)
					continue
				}
				surv.Set(expit(logit(muS.Data[a])+g.re(v, NodeEpsTS, a, t)), a, t)
			}
		}
		out[NodeS] = surv
		if g.cfg.Telemetry {
			s1 := NewArray(nS)
			s2 := NewArray(nS)
			ref := g.cfg.TelemetryArea - 1
			for t := 0; t < nS; t++ {
				s1.Data[t] = v[NodeMuS1].Data[0]
				s2.Data[t] = surv.At(ref, t) / s1.Data[t]
			}
			out[NodeS1], out[NodeS2] = s1, s2
		}
	}

	density := NewArray(nA, NAgeC, nJ, nT)
	muD1, epsD1 := v[NodeMuD1], v[NodeEpsD1]
	for a := 0; a < nA; a++ {
		for j := 0; j < d.NSites[a]; j++ {
			adults := math.Exp(math.Log(muD1.Data[a]) + epsD1.At(a, j))
			density.Set(adults, a, 1, j, 0)
			density.Set(g.cfg.Recruits(adults, rYear.At(a, 0)), a, 0, j, 0)
			for t := 1; t < nT; t++ {
				adults = Survivors(density.At(a, 0, j, t-1), density.At(a, 1, j, t-1), surv.At(a, t-1))
				density.Set(adults, a, 1, j, t)
				density.Set(g.cfg.Recruits(adults, rYear.At(a, t)), a, 0, j, t)
			}
		}
	}
	out[NodeDensity] = density

	nExp := NewArray(nA, NAgeC, nJ, nT)
	nTot := NewArray(nA, nT)
	for a := 0; a < nA; a++ {
		for x := 0; x < NAgeC; x++ {
			for j := 0; j < d.NSites[a]; j++ {
				for t := 0; t < nT; t++ {
					n := density.At(a, x, j, t) * c.L.At(a, j, t) * c.W * 2
					nExp.Set(n, a, x, j, t)
					nTot.Data[a*nT+t] += n
				}
			}
		}
	}
	out[NodeNExp], out[NodeNTotExp] = nExp, nTot
}

// ElementName renders a node element the way samplers label columns:
// "Density[1, 2, 3, 4]" with 1-based indices, or the bare name for scalars.
func ElementName(name string, idx []int) string {
	if len(idx) == 0 {
		return name
	}
	s := name + "["
	for k, i := range idx {
		if k > 0 {
			s += ", "
		}
		s += fmt.Sprint(i + 1)
	}
	return s + "]"
}
