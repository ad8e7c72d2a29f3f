package model

import (
	"math"
	"math/rand/v2"
)

// ReferenceValues returns a plausible parameter set for g: moderate
// detection for truncation distance w, stable survival and recruitment, and
// zero random effects. Simulation and chain initialisation start from it.
func ReferenceValues(g *Graph, w float64) Values {
	v := make(Values)
	for _, name := range g.Parameters() {
		v[name] = NewArray(g.Shape(name)...)
	}
	fill := func(name string, x float64) {
		if arr, ok := v[name]; ok {
			for i := range arr.Data {
				arr.Data[i] = x
			}
		}
	}
	fill(NodeMuDD, math.Log(w/2))
	fill(NodeSigmaTDD, 0.2)
	fill(NodeMuR, 2.5)
	fill(NodeSigmaTR, 0.3)
	fill(NodeMuS, 0.4)
	fill(NodeSigmaTS, 0.3)
	fill(NodeMuS1, math.Sqrt(0.4))
	fill(NodeMuD1, 5)
	fill(NodeSigmaD, 0.5)
	return v
}

// Inits draws initial values for one chain: reference values nudged towards
// the data and jittered by rng, always strictly inside the prior support so
// the starting log posterior is finite.
func Inits(g *Graph, data Data, c Constants, rng *rand.Rand) Values {
	v := ReferenceValues(g, c.W)
	jitter := func(x, sd float64) float64 { return x * math.Exp(sd*rng.NormFloat64()) }
	d := g.dims

	if len(data.Y) > 0 {
		mean := 0.0
		for _, y := range data.Y {
			mean += y
		}
		mean /= float64(len(data.Y))
		// E|X| = sigma*sqrt(2/pi) for a half-normal.
		if s := mean * math.Sqrt(math.Pi/2); s > 0 {
			for a := range v[NodeMuDD].Data {
				v[NodeMuDD].Data[a] = math.Log(jitter(s, 0.05))
			}
		}
	}

	num, den := 0.0, 0.0
	for i := range data.SumR {
		num += data.SumR[i]
		den += c.SumAd[i]
	}
	if num > 0 && den > 0 {
		r := clamp(num/den, 0.1, 14)
		if g.cfg.PerFemale {
			r = clamp(r/g.cfg.femaleFraction(), 0.1, 14)
		}
		for a := range v[NodeMuR].Data {
			v[NodeMuR].Data[a] = clamp(jitter(r, 0.1), 0.05, 14.5)
		}
	}

	if muS, ok := v[NodeMuS]; ok {
		for a := range muS.Data {
			muS.Data[a] = clamp(jitter(0.4, 0.1), 0.05, 0.9)
		}
		if muS1, ok := v[NodeMuS1]; ok {
			muS1.Data[0] = math.Sqrt(muS.Data[g.cfg.TelemetryArea-1])
		}
	}

	// Year-1 adult density from adult counts corrected for detection.
	p0 := DetectionProbability(EffectiveStripWidth(math.Exp(v[NodeMuDD].Data[0])), c.W)
	if d.NYears > 0 && c.L.SameShape([]int{d.NAreas, d.MaxSites(), d.NYears}) && data.NALineYear.SameShape([]int{d.NAreas, NAgeC, d.MaxSites(), d.NYears}) {
		for a := 0; a < d.NAreas; a++ {
			num, den := 0.0, 0.0
			for j := 0; j < d.NSites[a]; j++ {
				num += data.NALineYear.At(a, 1, j, 0)
				den += c.L.At(a, j, 0) * c.W * 2 * p0
			}
			if num > 0 && den > 0 {
				v[NodeMuD1].Data[a] = clamp(jitter(num/den, 0.1), 0.01, 9.5)
			}
		}
	}

	for _, name := range []string{NodeSigmaTDD, NodeSigmaTR, NodeSigmaTS, NodeSigmaD} {
		if arr, ok := v[name]; ok {
			arr.Data[0] = clamp(jitter(arr.Data[0], 0.2), 0.01, 4.5)
		}
	}
	return v
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
