package posterior

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Credible interval bounds reported in summaries.
const (
	LowerQuantile = 0.025
	UpperQuantile = 0.975
)

// Summary describes the marginal posterior of one monitored element.
type Summary struct {
	Parameter string
	Index     string
	Area      int
	AgeClass  int
	Site      int
	Year      int
	N         int
	Mean      float64
	SD        float64
	Median    float64
	Lower     float64
	Upper     float64
	// Rhat is the Gelman-Rubin statistic; NaN with fewer than two chains.
	Rhat float64
}

// Column is the sampler column the summary describes.
func (s Summary) Column() string {
	return TidyRow{Parameter: s.Parameter, Index: s.Index}.Column()
}

type group struct {
	first  TidyRow
	values []float64
	chains map[int][]float64
	order  []int
}

// Summarize computes per-element medians, 95% credible intervals, moments
// and Rhat. Output follows the order in which elements first appear.
func Summarize(rows []TidyRow) []Summary {
	groups := make(map[string]*group)
	var keys []string
	for _, r := range rows {
		key := r.Column()
		g, ok := groups[key]
		if !ok {
			g = &group{first: r, chains: make(map[int][]float64)}
			groups[key] = g
			keys = append(keys, key)
		}
		g.values = append(g.values, r.Value)
		if _, seen := g.chains[r.Chain]; !seen {
			g.order = append(g.order, r.Chain)
		}
		g.chains[r.Chain] = append(g.chains[r.Chain], r.Value)
	}

	out := make([]Summary, 0, len(keys))
	for _, key := range keys {
		g := groups[key]
		sorted := append([]float64(nil), g.values...)
		sort.Float64s(sorted)
		s := Summary{
			Parameter: g.first.Parameter,
			Index:     g.first.Index,
			Area:      g.first.Area,
			AgeClass:  g.first.AgeClass,
			Site:      g.first.Site,
			Year:      g.first.Year,
			N:         len(sorted),
			Mean:      stat.Mean(sorted, nil),
			Median:    quantile(sorted, 0.5),
			Lower:     quantile(sorted, LowerQuantile),
			Upper:     quantile(sorted, UpperQuantile),
			Rhat:      math.NaN(),
		}
		if len(sorted) > 1 {
			s.SD = stat.StdDev(sorted, nil)
		}
		if len(g.order) > 1 {
			per := make([][]float64, len(g.order))
			for i, c := range g.order {
				per[i] = g.chains[c]
			}
			s.Rhat = rhat(per)
		}
		out = append(out, s)
	}
	return out
}

// quantile interpolates linearly between order statistics at h = (n-1)p
// (Hyndman-Fan type 7, the R default). sorted must be ascending.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	h := float64(len(sorted)-1) * p
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

// rhat is the potential scale reduction factor over equal-length chains
// (chains are truncated to the shortest one).
func rhat(chains [][]float64) float64 {
	n := len(chains[0])
	for _, c := range chains[1:] {
		if len(c) < n {
			n = len(c)
		}
	}
	m := float64(len(chains))
	if n < 2 {
		return math.NaN()
	}
	means := make([]float64, len(chains))
	within := 0.0
	for i, c := range chains {
		means[i] = stat.Mean(c[:n], nil)
		within += stat.Variance(c[:n], nil)
	}
	within /= m
	if within == 0 {
		return math.NaN()
	}
	between := float64(n) * stat.Variance(means, nil)
	fn := float64(n)
	varPlus := (fn-1)/fn*within + between/fn
	return math.Sqrt(varPlus / within)
}

// AreaTables splits summaries by area; elements without an area axis are
// filed under area 0.
func AreaTables(summaries []Summary) map[int][]Summary {
	out := make(map[int][]Summary)
	for _, s := range summaries {
		out[s.Area] = append(out[s.Area], s)
	}
	return out
}
