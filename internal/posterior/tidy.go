package posterior

import (
	"fmt"
	"strings"

	"idsm/internal/model"
)

// Axes maps node names to the dimensions of their indices so tidy rows can
// label area, age class, site and year.
type Axes map[string][]model.Dim

// AxesOf reads node axes from a graph.
func AxesOf(g *model.Graph) Axes {
	axes := make(Axes)
	for _, n := range g.Nodes() {
		axes[n.Name] = n.Index
	}
	return axes
}

// TidyRow is one draw of one monitored element in long format. Zero labels
// mean the element has no such axis.
type TidyRow struct {
	Parameter string
	Index     string
	Area      int
	AgeClass  int
	Site      int
	Year      int
	Chain     int
	Iteration int
	Value     float64
}

// Column reconstructs the sampler column name of the row.
func (r TidyRow) Column() string {
	if r.Index == "" {
		return r.Parameter
	}
	return r.Parameter + "[" + r.Index + "]"
}

type label struct {
	parameter string
	index     string
	area      int
	age       int
	site      int
	year      int
}

func labelColumn(col string, axes Axes) (label, error) {
	node, idx, err := ParseName(col)
	if err != nil {
		return label{}, err
	}
	l := label{parameter: node}
	if len(idx) == 0 {
		return l, nil
	}
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = fmt.Sprint(v)
	}
	l.index = strings.Join(parts, ", ")
	dims, ok := axes[node]
	if !ok {
		return l, nil
	}
	if len(dims) != len(idx) {
		return label{}, fmt.Errorf("posterior: %s has %d indices, node has %d axes", col, len(idx), len(dims))
	}
	for k, dim := range dims {
		switch dim {
		case model.DimArea:
			l.area = idx[k]
		case model.DimAge:
			l.age = idx[k]
		case model.DimSite:
			l.site = idx[k]
		case model.DimYear, model.DimSurv:
			l.year = idx[k]
		}
	}
	return l, nil
}

// Tidy reshapes draws into long format, one row per chain, iteration and
// column. Iterations are 1-based within each chain.
func Tidy(d Draws, axes Axes) ([]TidyRow, error) {
	labels := make([]label, len(d.Columns))
	for i, col := range d.Columns {
		l, err := labelColumn(col, axes)
		if err != nil {
			return nil, err
		}
		labels[i] = l
	}
	total := 0
	for _, c := range d.Chains {
		total += len(c.Draws) * len(d.Columns)
	}
	rows := make([]TidyRow, 0, total)
	for _, c := range d.Chains {
		for it, draw := range c.Draws {
			for i, l := range labels {
				rows = append(rows, TidyRow{
					Parameter: l.parameter,
					Index:     l.index,
					Area:      l.area,
					AgeClass:  l.age,
					Site:      l.site,
					Year:      l.year,
					Chain:     c.Index,
					Iteration: it + 1,
					Value:     draw[i],
				})
			}
		}
	}
	return rows, nil
}
