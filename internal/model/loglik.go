package model

import "math"

// LogPrior sums the prior densities of every free parameter in v.
func (g *Graph) LogPrior(v Values) float64 {
	return g.logPrior(v, g.offsetTable())
}

func (g *Graph) logPrior(v Values, offsets offsetTable) float64 {
	total := 0.0
	for _, n := range g.nodes {
		if n.Kind != Stochastic {
			continue
		}
		arr := v[n.Name]
		for _, off := range offsets[n.Name] {
			x := arr.Data[off]
			switch n.Prior.Family {
			case Uniform:
				total += uniformLogProb(x, n.Prior.Lower, n.Prior.Upper)
			case Normal:
				sd := n.Prior.SD
				if n.Prior.SDNode != "" {
					sd = v[n.Prior.SDNode].Data[0]
				}
				total += normalLogProb(x, n.Prior.Mean, sd)
			}
			if math.IsInf(total, -1) {
				return total
			}
		}
	}
	return total
}

// LogLikelihood sums the four conditionally independent observation streams
// given the deterministic nodes in state.
func (g *Graph) LogLikelihood(data Data, c Constants, state Values) float64 {
	d := g.dims
	total := 0.0

	sigma := state[NodeSigma]
	for i, y := range data.Y {
		total += halfNormalLogProb(y, sigma.At(c.AreaObs[i]-1, c.YearObs[i]-1), c.W)
	}

	p, nExp := state[NodeP], state[NodeNExp]
	for a := 0; a < d.NAreas; a++ {
		for x := 0; x < NAgeC; x++ {
			for j := 0; j < d.NSites[a]; j++ {
				for t := 0; t < d.NYears; t++ {
					total += poissonLogProb(data.NALineYear.At(a, x, j, t), p.At(a, t)*nExp.At(a, x, j, t))
				}
			}
		}
	}

	rYear := state[NodeRYear]
	for i, r := range data.SumR {
		total += poissonLogProb(r, rYear.At(c.SumRArea[i]-1, c.SumRYear[i]-1)*c.SumAd[i])
	}

	if g.cfg.Telemetry {
		s1, s2 := state[NodeS1], state[NodeS2]
		for k, t := range c.YearRT {
			total += binomialLogProb(data.Survs1.At(k, 1), data.Survs1.At(k, 0), s1.Data[t-1])
			total += binomialLogProb(data.Survs2.At(k, 1), data.Survs2.At(k, 0), s2.Data[t-1])
		}
	}
	if math.IsNaN(total) {
		return negInf
	}
	return total
}

// LogPosterior is the unnormalised joint log density of v given the data.
func (g *Graph) LogPosterior(data Data, c Constants, v Values) (float64, error) {
	state, err := g.Evaluate(data, c, v)
	if err != nil {
		return 0, err
	}
	lp := g.LogPrior(v)
	if math.IsInf(lp, -1) {
		return lp, nil
	}
	return lp + g.LogLikelihood(data, c, state), nil
}
