package model

import (
	"fmt"
	"math"
)

// Coordinate is one scalar of the free-parameter vector.
type Coordinate struct {
	Node   string
	Offset int
	Name   string
	Lower  float64
	Upper  float64
}

func (c Coordinate) bounded() bool {
	return !math.IsInf(c.Lower, 0) && !math.IsInf(c.Upper, 0)
}

// toUnconstrained maps a value inside the prior support to the real line.
func (c Coordinate) toUnconstrained(x float64) float64 {
	if !c.bounded() {
		return x
	}
	u := (x - c.Lower) / (c.Upper - c.Lower)
	return logit(u)
}

// fromUnconstrained maps z back into the support and returns the log
// Jacobian of the transform.
func (c Coordinate) fromUnconstrained(z float64) (float64, float64) {
	if !c.bounded() {
		return z, 0
	}
	s := expit(z)
	width := c.Upper - c.Lower
	jac := math.Log(width) - math.Log1p(math.Exp(-z)) - math.Log1p(math.Exp(z))
	return c.Lower + width*s, jac
}

// Target is a compiled graph bound to its data and constants: the log density
// of the free parameters on the unconstrained scale, ready for a sampler.
type Target struct {
	g      *Graph
	data   Data
	consts Constants
	coords []Coordinate
	// offsets holds the active elements of every node, computed once.
	offsets offsetTable
}

// NewTarget binds data and constants to g after checking their shapes.
func NewTarget(g *Graph, data Data, c Constants) (*Target, error) {
	if err := g.checkShapes(data, c); err != nil {
		return nil, err
	}
	t := &Target{g: g, data: data, consts: c, offsets: g.offsetTable()}
	for _, name := range g.Parameters() {
		n, _ := g.Node(name)
		lo, hi := priorBounds(n.Prior)
		shape := g.Shape(name)
		for _, idx := range g.Elements(name) {
			t.coords = append(t.coords, Coordinate{Node: name, Offset: ravel(idx, shape), Name: ElementName(name, idx), Lower: lo, Upper: hi})
		}
	}
	return t, nil
}

// Graph returns the graph the target was compiled from.
func (t *Target) Graph() *Graph { return t.g }

// Dim is the number of free scalars.
func (t *Target) Dim() int { return len(t.coords) }

// Coordinates describes each free scalar in vector order.
func (t *Target) Coordinates() []Coordinate {
	return append([]Coordinate(nil), t.coords...)
}

// blank allocates zeroed arrays for every free parameter.
func (t *Target) blank() Values {
	v := make(Values)
	for _, name := range t.g.Parameters() {
		v[name] = NewArray(t.g.Shape(name)...)
	}
	return v
}

// Unconstrain flattens v into the sampler's vector.
func (t *Target) Unconstrain(v Values) ([]float64, error) {
	if err := t.g.CheckValues(v); err != nil {
		return nil, err
	}
	z := make([]float64, len(t.coords))
	for i, c := range t.coords {
		x := v[c.Node].Data[c.Offset]
		if c.bounded() && !(x > c.Lower && x < c.Upper) {
			return nil, fmt.Errorf("%w: initial %s=%v outside (%v, %v)", ErrShape, c.Name, x, c.Lower, c.Upper)
		}
		z[i] = c.toUnconstrained(x)
	}
	return z, nil
}

// Constrain maps a sampler vector back to parameter values and returns the
// summed log Jacobian.
func (t *Target) Constrain(z []float64) (Values, float64) {
	v := t.blank()
	jac := 0.0
	for i, c := range t.coords {
		x, j := c.fromUnconstrained(z[i])
		v[c.Node].Data[c.Offset] = x
		jac += j
	}
	return v, jac
}

// LogDensity evaluates the unnormalised log posterior at z, including the
// Jacobian of the constraining transform.
func (t *Target) LogDensity(z []float64) float64 {
	v, jac := t.Constrain(z)
	lp := t.g.logPrior(v, t.offsets)
	if math.IsInf(lp, -1) || math.IsNaN(lp) {
		return negInf
	}
	state := make(Values, 12)
	t.g.evaluate(t.data, t.consts, v, state)
	ll := t.g.LogLikelihood(t.data, t.consts, state)
	out := lp + ll + jac
	if math.IsNaN(out) {
		return negInf
	}
	return out
}

// Columns lists the element names recorded for the given monitored nodes.
func (t *Target) Columns(monitors []string) ([]string, error) {
	var cols []string
	for _, name := range monitors {
		if !t.g.Has(name) {
			return nil, fmt.Errorf("%w: monitor %s is not declared in variant %s", ErrShape, name, t.g.Variant())
		}
		for _, idx := range t.g.Elements(name) {
			cols = append(cols, ElementName(name, idx))
		}
	}
	return cols, nil
}

// Record appends the monitored values at z to dst in Columns order.
func (t *Target) Record(z []float64, monitors []string, dst []float64) []float64 {
	v, _ := t.Constrain(z)
	state := make(Values, 12)
	t.g.evaluate(t.data, t.consts, v, state)
	for _, name := range monitors {
		arr, ok := v[name]
		if !ok {
			arr = state[name]
		}
		for _, off := range t.offsets[name] {
			dst = append(dst, arr.Data[off])
		}
	}
	return dst
}
