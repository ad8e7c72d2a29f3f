package model

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var negInf = math.Inf(-1)

// poissonLogProb is log P(X = x) for X ~ Poisson(lambda); a zero rate admits
// only zero counts.
func poissonLogProb(x, lambda float64) float64 {
	switch {
	case math.IsNaN(lambda) || lambda < 0 || math.IsInf(lambda, 1):
		return negInf
	case lambda == 0:
		if x == 0 {
			return 0
		}
		return negInf
	}
	return distuv.Poisson{Lambda: lambda}.LogProb(x)
}

// binomialLogProb is log P(X = x) for X ~ Binomial(n, p). Probabilities
// outside [0, 1] are impossible rather than errors.
func binomialLogProb(x, n, p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0 || p > 1 || x < 0 || x > n:
		return negInf
	case n == 0:
		return 0
	case p == 0:
		if x == 0 {
			return 0
		}
		return negInf
	case p == 1:
		if x == n {
			return 0
		}
		return negInf
	}
	return distuv.Binomial{N: n, P: p}.LogProb(x)
}

// halfNormalLogProb is the log density of a distance y under a half-normal
// detection function with scale sigma truncated at w.
func halfNormalLogProb(y, sigma, w float64) float64 {
	if !(sigma > 0) || y < 0 || y > w {
		return negInf
	}
	mass := math.Erf(w / (sigma * math.Sqrt2))
	if mass <= 0 {
		return negInf
	}
	return distuv.Normal{Mu: 0, Sigma: sigma}.LogProb(y) + math.Ln2 - math.Log(mass)
}

func normalLogProb(x, mean, sd float64) float64 {
	if !(sd > 0) {
		return negInf
	}
	return distuv.Normal{Mu: mean, Sigma: sd}.LogProb(x)
}

// uniformLogProb has open support (lo, hi), the image of the logit transform.
func uniformLogProb(x, lo, hi float64) float64 {
	if !(x > lo && x < hi) {
		return negInf
	}
	return -math.Log(hi - lo)
}
