// Package posterior reshapes, thins and summarises posterior draws and
// renders them into the persisted run archives.
package posterior

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"idsm/internal/model"
	"idsm/internal/sampler"
)

// ErrColumns is returned when chains disagree about their monitored columns.
var ErrColumns = errors.New("posterior: chains have different columns")

// Draws combines the chains of one run once every chain has finished.
type Draws struct {
	OriginSeed int64           `json:"origin_seed"`
	RunSeed    int64           `json:"run_seed"`
	Variant    string          `json:"variant"`
	Columns    []string        `json:"columns"`
	Chains     []sampler.Chain `json:"chains"`
	// Axes labels the monitored nodes so a stored archive can be tidied
	// without rebuilding its graph.
	Axes Axes `json:"axes,omitempty"`
}

// Combine checks that all chains share columns and orders them by index.
func Combine(originSeed, runSeed int64, variant string, chains []sampler.Chain) (Draws, error) {
	if len(chains) == 0 {
		return Draws{}, fmt.Errorf("posterior: no chains to combine")
	}
	cols := chains[0].Columns
	for _, c := range chains[1:] {
		if len(c.Columns) != len(cols) {
			return Draws{}, fmt.Errorf("%w: chain %d has %d columns, chain %d has %d", ErrColumns, c.Index, len(c.Columns), chains[0].Index, len(cols))
		}
		for i := range cols {
			if c.Columns[i] != cols[i] {
				return Draws{}, fmt.Errorf("%w: column %d is %s vs %s", ErrColumns, i, c.Columns[i], cols[i])
			}
		}
	}
	sorted := append([]sampler.Chain(nil), chains...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Index < sorted[j-1].Index; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return Draws{OriginSeed: originSeed, RunSeed: runSeed, Variant: variant, Columns: append([]string(nil), cols...), Chains: sorted}, nil
}

// Thin keeps every k-th draw of every chain.
func (d Draws) Thin(k int) Draws {
	if k <= 1 {
		return d
	}
	out := d
	out.Chains = make([]sampler.Chain, len(d.Chains))
	for i, c := range d.Chains {
		kept := c
		kept.Draws = nil
		for it := 0; it < len(c.Draws); it += k {
			kept.Draws = append(kept.Draws, c.Draws[it])
		}
		out.Chains[i] = kept
	}
	return out
}

// WithAxes attaches the axes of the monitored nodes taken from all.
func (d Draws) WithAxes(all Axes) Draws {
	out := d
	out.Axes = make(Axes)
	for _, col := range d.Columns {
		name, _, err := ParseName(col)
		if err != nil {
			continue
		}
		if dims, ok := all[name]; ok {
			out.Axes[name] = append([]model.Dim(nil), dims...)
		}
	}
	return out
}

// Column extracts one monitored element across all chains, chain by chain.
func (d Draws) Column(name string) ([]float64, bool) {
	col := -1
	for i, c := range d.Columns {
		if c == name {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, false
	}
	var out []float64
	for _, c := range d.Chains {
		for _, row := range c.Draws {
			out = append(out, row[col])
		}
	}
	return out, true
}

// ParseName splits "Density[1, 2, 3, 4]" into its node and 1-based indices.
func ParseName(col string) (string, []int, error) {
	open := strings.IndexByte(col, '[')
	if open < 0 {
		return col, nil, nil
	}
	if !strings.HasSuffix(col, "]") {
		return "", nil, fmt.Errorf("posterior: malformed column %q", col)
	}
	parts := strings.Split(col[open+1:len(col)-1], ",")
	idx := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return "", nil, fmt.Errorf("posterior: malformed index in %q: %w", col, err)
		}
		idx[i] = n
	}
	return col[:open], idx, nil
}
