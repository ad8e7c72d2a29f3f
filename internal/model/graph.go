package model

import (
	"fmt"
	"math"
)

// Kind distinguishes how a node relates to its parents.
type Kind string

const (
	// Stochastic nodes are free parameters declared with `~` and a prior.
	Stochastic Kind = "stochastic"
	// Deterministic nodes are declared with `<-` as functions of parents.
	Deterministic Kind = "deterministic"
	// Observed nodes are stochastic nodes plugged with data.
	Observed Kind = "data"
)

// Family names a prior or sampling distribution.
type Family string

const (
	Uniform    Family = "dunif"
	Normal     Family = "dnorm"
	Poisson    Family = "dpois"
	Binomial   Family = "dbinom"
	HalfNormal Family = "dHN"
)

// Prior describes the distribution of a free parameter. Normal priors take
// their SD either from SD or, when SDNode is set, from that scalar node.
type Prior struct {
	Family Family  `json:"family"`
	Lower  float64 `json:"lower,omitempty"`
	Upper  float64 `json:"upper,omitempty"`
	Mean   float64 `json:"mean,omitempty"`
	SD     float64 `json:"sd,omitempty"`
	SDNode string  `json:"sd_node,omitempty"`
}

// Node is one declaration of the model graph.
type Node struct {
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Index   []Dim    `json:"index,omitempty"`
	Prior   *Prior   `json:"prior,omitempty"`
	Dist    Family   `json:"dist,omitempty"`
	Parents []string `json:"parents,omitempty"`
}

// Node names shared by builder, evaluator and simulator.
const (
	NodeMuDD       = "mu.dd"
	NodeSigmaTDD   = "sigmaT.dd"
	NodeEpsTDD     = "epsT.dd"
	NodeSigma      = "sigma"
	NodeESW        = "esw"
	NodeP          = "p"
	NodeMuR        = "Mu.R"
	NodeSigmaTR    = "sigmaT.R"
	NodeEpsTR      = "epsT.R"
	NodeBetaRR     = "betaR.R"
	NodeRYear      = "R_year"
	NodeMuS        = "Mu.S"
	NodeSigmaTS    = "sigmaT.S"
	NodeEpsTS      = "epsT.S"
	NodeS          = "S"
	NodeMuS1       = "Mu.S1"
	NodeS1         = "S1"
	NodeS2         = "S2"
	NodeMuD1       = "Mu.D1"
	NodeSigmaD     = "sigma.D"
	NodeEpsD1      = "eps.D1"
	NodeDensity    = "Density"
	NodeNExp       = "N_exp"
	NodeNTotExp    = "N_tot_exp"
	NodeY          = "y"
	NodeNALineYear = "N_a_line_year"
	NodeSumR       = "sumR_obs"
	NodeSurvs1     = "Survs1"
	NodeSurvs2     = "Survs2"
)

// Graph is an immutable model graph for one configuration and one set of
// dimensions.
type Graph struct {
	cfg   Config
	dims  Dims
	nodes []Node
	index map[string]int
}

// Build constructs the graph for cfg and dims. Inconsistent input fails here,
// before anything is compiled or sampled.
func Build(cfg Config, dims Dims) (*Graph, error) {
	if err := dims.validate(); err != nil {
		return nil, err
	}
	if err := cfg.validate(dims); err != nil {
		return nil, err
	}
	dims.NSites = append([]int(nil), dims.NSites...)
	g := &Graph{cfg: cfg, dims: dims, index: make(map[string]int)}
	g.declare()
	return g, nil
}

func (g *Graph) add(n Node) {
	if _, dup := g.index[n.Name]; dup {
		panic(fmt.Sprintf("model: duplicate node %s", n.Name))
	}
	g.index[n.Name] = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

func unif(lo, hi float64) *Prior { return &Prior{Family: Uniform, Lower: lo, Upper: hi} }

func reNormal(sdNode string) *Prior { return &Prior{Family: Normal, SDNode: sdNode} }

// yearRE returns the index of a year random effect: shared across areas or
// per area.
func (g *Graph) yearRE(year Dim) []Dim {
	if g.cfg.SharedRE {
		return []Dim{year}
	}
	return []Dim{DimArea, year}
}

func (g *Graph) declare() {
	cfg := g.cfg
	hasSurv := g.dims.SurvYears() > 0

	// Detection.
	g.add(Node{Name: NodeMuDD, Kind: Stochastic, Index: []Dim{DimArea}, Prior: unif(-10, 100)})
	g.add(Node{Name: NodeSigmaTDD, Kind: Stochastic, Prior: unif(0, 20)})
	g.add(Node{Name: NodeEpsTDD, Kind: Stochastic, Index: g.yearRE(DimYear), Prior: reNormal(NodeSigmaTDD), Parents: []string{NodeSigmaTDD}})
	g.add(Node{Name: NodeSigma, Kind: Deterministic, Index: []Dim{DimArea, DimYear}, Parents: []string{NodeMuDD, NodeEpsTDD}})
	g.add(Node{Name: NodeESW, Kind: Deterministic, Index: []Dim{DimArea, DimYear}, Parents: []string{NodeSigma}})
	g.add(Node{Name: NodeP, Kind: Deterministic, Index: []Dim{DimArea, DimYear}, Parents: []string{NodeESW}})

	// Recruitment.
	g.add(Node{Name: NodeMuR, Kind: Stochastic, Index: []Dim{DimArea}, Prior: unif(0, 15)})
	g.add(Node{Name: NodeSigmaTR, Kind: Stochastic, Prior: unif(0, 5)})
	g.add(Node{Name: NodeEpsTR, Kind: Stochastic, Index: g.yearRE(DimYear), Prior: reNormal(NodeSigmaTR), Parents: []string{NodeSigmaTR}})
	rParents := []string{NodeMuR, NodeEpsTR}
	if cfg.RodentCov {
		g.add(Node{Name: NodeBetaRR, Kind: Stochastic, Index: []Dim{DimArea}, Prior: &Prior{Family: Normal, SD: 5}})
		rParents = append(rParents, NodeBetaRR)
	}
	g.add(Node{Name: NodeRYear, Kind: Deterministic, Index: []Dim{DimArea, DimYear}, Parents: rParents})

	// Survival.
	if hasSurv {
		g.add(Node{Name: NodeMuS, Kind: Stochastic, Index: []Dim{DimArea}, Prior: unif(0, 1)})
		sParents := []string{NodeMuS}
		if cfg.SurvVarT {
			g.add(Node{Name: NodeSigmaTS, Kind: Stochastic, Prior: unif(0, 5)})
			g.add(Node{Name: NodeEpsTS, Kind: Stochastic, Index: g.yearRE(DimSurv), Prior: reNormal(NodeSigmaTS), Parents: []string{NodeSigmaTS}})
			sParents = append(sParents, NodeEpsTS)
		}
		g.add(Node{Name: NodeS, Kind: Deterministic, Index: []Dim{DimArea, DimSurv}, Parents: sParents})
		if cfg.Telemetry {
			g.add(Node{Name: NodeMuS1, Kind: Stochastic, Prior: unif(0, 1)})
			g.add(Node{Name: NodeS1, Kind: Deterministic, Index: []Dim{DimSurv}, Parents: []string{NodeMuS1}})
			g.add(Node{Name: NodeS2, Kind: Deterministic, Index: []Dim{DimSurv}, Parents: []string{NodeS, NodeS1}})
		}
	}

	// Initial densities and the projection.
	g.add(Node{Name: NodeMuD1, Kind: Stochastic, Index: []Dim{DimArea}, Prior: unif(0, 10)})
	g.add(Node{Name: NodeSigmaD, Kind: Stochastic, Prior: unif(0, 20)})
	g.add(Node{Name: NodeEpsD1, Kind: Stochastic, Index: []Dim{DimArea, DimSite}, Prior: reNormal(NodeSigmaD), Parents: []string{NodeSigmaD}})
	dParents := []string{NodeMuD1, NodeEpsD1, NodeRYear}
	if hasSurv {
		dParents = append(dParents, NodeS)
	}
	g.add(Node{Name: NodeDensity, Kind: Deterministic, Index: []Dim{DimArea, DimAge, DimSite, DimYear}, Parents: dParents})
	g.add(Node{Name: NodeNExp, Kind: Deterministic, Index: []Dim{DimArea, DimAge, DimSite, DimYear}, Parents: []string{NodeDensity}})
	g.add(Node{Name: NodeNTotExp, Kind: Deterministic, Index: []Dim{DimArea, DimYear}, Parents: []string{NodeNExp}})

	// Likelihoods.
	g.add(Node{Name: NodeY, Kind: Observed, Index: []Dim{DimObs}, Dist: HalfNormal, Parents: []string{NodeSigma}})
	g.add(Node{Name: NodeNALineYear, Kind: Observed, Index: []Dim{DimArea, DimAge, DimSite, DimYear}, Dist: Poisson, Parents: []string{NodeP, NodeNExp}})
	g.add(Node{Name: NodeSumR, Kind: Observed, Index: []Dim{DimSumR}, Dist: Poisson, Parents: []string{NodeRYear}})
	if cfg.Telemetry && hasSurv {
		g.add(Node{Name: NodeSurvs1, Kind: Observed, Index: []Dim{DimYearRT, DimPair}, Dist: Binomial, Parents: []string{NodeS1}})
		g.add(Node{Name: NodeSurvs2, Kind: Observed, Index: []Dim{DimYearRT, DimPair}, Dist: Binomial, Parents: []string{NodeS2}})
	}
}

// Config returns the configuration the graph was built from.
func (g *Graph) Config() Config { return g.cfg }

// Dims returns a copy of the graph dimensions.
func (g *Graph) Dims() Dims {
	d := g.dims
	d.NSites = append([]int(nil), g.dims.NSites...)
	return d
}

// Variant is the configuration tag of the graph.
func (g *Graph) Variant() string { return g.cfg.Variant() }

// Nodes returns the declarations in graph order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n
		out[i].Index = append([]Dim(nil), n.Index...)
		out[i].Parents = append([]string(nil), n.Parents...)
		if n.Prior != nil {
			p := *n.Prior
			out[i].Prior = &p
		}
	}
	return out
}

// Node looks up a declaration by name.
func (g *Graph) Node(name string) (Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Has reports whether the graph declares name.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Shape resolves the extents of a node.
func (g *Graph) Shape(name string) []int {
	n, ok := g.Node(name)
	if !ok {
		return nil
	}
	shape := make([]int, len(n.Index))
	for i, dim := range n.Index {
		shape[i] = g.dims.extent(dim)
	}
	return shape
}

// Parameters lists the free stochastic nodes in graph order.
func (g *Graph) Parameters() []string {
	return g.namesOf(Stochastic)
}

// DataNodes lists the nodes the sampler must plug data into.
func (g *Graph) DataNodes() []string {
	return g.namesOf(Observed)
}

// Monitors lists the nodes worth recording by default: every free parameter
// plus the deterministic quantities of interest.
func (g *Graph) Monitors() []string {
	out := g.Parameters()
	for _, name := range []string{NodeSigma, NodeESW, NodeP, NodeRYear, NodeS, NodeS1, NodeS2, NodeDensity, NodeNTotExp} {
		if g.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

func (g *Graph) namesOf(kind Kind) []string {
	var out []string
	for _, n := range g.nodes {
		if n.Kind == kind {
			out = append(out, n.Name)
		}
	}
	return out
}

// active reports whether the element idx of node n exists: sites beyond an
// area's own site count are padding.
func (g *Graph) active(n Node, idx []int) bool {
	area := -1
	for k, dim := range n.Index {
		switch dim {
		case DimArea:
			area = idx[k]
		case DimSite:
			if area >= 0 && idx[k] >= g.dims.NSites[area] {
				return false
			}
		}
	}
	return true
}

// Elements enumerates the active 0-based multi-indices of a node in
// row-major order.
func (g *Graph) Elements(name string) [][]int {
	n, ok := g.Node(name)
	if !ok {
		return nil
	}
	shape := g.Shape(name)
	total := product(shape)
	out := make([][]int, 0, total)
	for off := 0; off < total; off++ {
		idx := unravel(off, shape)
		if g.active(n, idx) {
			out = append(out, idx)
		}
	}
	return out
}

// offsetTable maps every node to the flat offsets of its active elements.
type offsetTable map[string][]int

func (g *Graph) offsetTable() offsetTable {
	out := make(offsetTable, len(g.nodes))
	for _, n := range g.nodes {
		shape := g.Shape(n.Name)
		elems := g.Elements(n.Name)
		offs := make([]int, len(elems))
		for i, idx := range elems {
			offs[i] = ravel(idx, shape)
		}
		out[n.Name] = offs
	}
	return out
}

// priorBounds returns the support of a free parameter's prior.
func priorBounds(p *Prior) (lo, hi float64) {
	if p.Family == Uniform {
		return p.Lower, p.Upper
	}
	return math.Inf(-1), math.Inf(1)
}
