package model

import "fmt"

// Array is a dense row-major array of float64 with 0-based indexing.
type Array struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewArray allocates a zero-filled array. A call without extents yields a
// scalar.
func NewArray(shape ...int) Array {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return Array{Shape: append([]int(nil), shape...), Data: make([]float64, n)}
}

// Scalar wraps a single value.
func Scalar(v float64) Array { return Array{Data: []float64{v}} }

// Vector wraps a one-dimensional slice without copying.
func Vector(v []float64) Array { return Array{Shape: []int{len(v)}, Data: v} }

// Len is the number of elements.
func (a Array) Len() int { return len(a.Data) }

func (a Array) offset(idx []int) int {
	if len(idx) != len(a.Shape) {
		panic(fmt.Sprintf("model: index rank %d for array of rank %d", len(idx), len(a.Shape)))
	}
	off := 0
	for k, i := range idx {
		if i < 0 || i >= a.Shape[k] {
			panic(fmt.Sprintf("model: index %v out of range for shape %v", idx, a.Shape))
		}
		off = off*a.Shape[k] + i
	}
	return off
}

// At returns the element at idx.
func (a Array) At(idx ...int) float64 { return a.Data[a.offset(idx)] }

// Set stores v at idx.
func (a Array) Set(v float64, idx ...int) { a.Data[a.offset(idx)] = v }

// Clone deep-copies the array.
func (a Array) Clone() Array {
	return Array{Shape: append([]int(nil), a.Shape...), Data: append([]float64(nil), a.Data...)}
}

// SameShape reports whether a has exactly the given extents.
func (a Array) SameShape(shape []int) bool {
	if len(a.Shape) != len(shape) {
		return false
	}
	for i := range shape {
		if a.Shape[i] != shape[i] {
			return false
		}
	}
	return len(a.Data) == product(shape)
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// ravel converts a multi-index to its flat offset for shape.
func ravel(idx, shape []int) int {
	off := 0
	for k, i := range idx {
		off = off*shape[k] + i
	}
	return off
}

// unravel converts a flat offset to a multi-index for shape.
func unravel(off int, shape []int) []int {
	idx := make([]int, len(shape))
	for k := len(shape) - 1; k >= 0; k-- {
		if shape[k] == 0 {
			return idx
		}
		idx[k] = off % shape[k]
		off /= shape[k]
	}
	return idx
}

// Values maps node names to their arrays.
type Values map[string]Array

// Clone deep-copies every array.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, a := range v {
		out[k] = a.Clone()
	}
	return out
}
