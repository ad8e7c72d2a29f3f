// Package inputs reads and writes the model input bundle: two disjoint
// named-array maps, "data" for observed values and "constants" for
// dimensions, index vectors, effort and covariates.
package inputs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"idsm/internal/model"
)

// Data keys.
const (
	KeyY          = model.NodeY
	KeyNALineYear = model.NodeNALineYear
	KeySumR       = model.NodeSumR
	KeySurvs1     = model.NodeSurvs1
	KeySurvs2     = model.NodeSurvs2
	KeyRodentOcc  = "RodentOcc"
)

// Constant keys.
const (
	KeyW        = "W"
	KeyL        = "L"
	KeyNYears   = "N_years"
	KeyNSites   = "N_sites"
	KeyYearObs  = "Year_obs"
	KeyAreaObs  = "Area_obs"
	KeySumAd    = "sumAd"
	KeySumRYear = "sumR_obs_year"
	KeySumRArea = "SumR_area"
	KeyYearRT   = "year_RT"
)

var (
	requiredData      = []string{KeyY, KeyNALineYear, KeySumR}
	requiredConstants = []string{KeyW, KeyL, KeyNYears, KeyNSites, KeyYearObs, KeyAreaObs, KeySumAd, KeySumRYear, KeySumRArea}
)

// ErrBundle marks malformed bundles.
var ErrBundle = errors.New("inputs: invalid bundle")

// Bundle is the on-disk form of one dataset.
type Bundle struct {
	Data      map[string]model.Array `json:"data"`
	Constants map[string]model.Array `json:"constants"`
}

// FromModel packs model inputs into a bundle. Optional entries are only
// written when present.
func FromModel(data model.Data, c model.Constants, dims model.Dims) Bundle {
	b := Bundle{
		Data: map[string]model.Array{
			KeyY:          model.Vector(append([]float64(nil), data.Y...)),
			KeyNALineYear: data.NALineYear.Clone(),
			KeySumR:       model.Vector(append([]float64(nil), data.SumR...)),
		},
		Constants: map[string]model.Array{
			KeyW:        model.Scalar(c.W),
			KeyL:        c.L.Clone(),
			KeyNYears:   model.Scalar(float64(dims.NYears)),
			KeyNSites:   intVector(dims.NSites),
			KeyYearObs:  intVector(c.YearObs),
			KeyAreaObs:  intVector(c.AreaObs),
			KeySumAd:    model.Vector(append([]float64(nil), c.SumAd...)),
			KeySumRYear: intVector(c.SumRYear),
			KeySumRArea: intVector(c.SumRArea),
		},
	}
	if data.Survs1.Len() > 0 {
		b.Data[KeySurvs1] = data.Survs1.Clone()
		b.Data[KeySurvs2] = data.Survs2.Clone()
		b.Constants[KeyYearRT] = intVector(c.YearRT)
	}
	if data.RodentOcc.Len() > 0 {
		b.Data[KeyRodentOcc] = data.RodentOcc.Clone()
	}
	return b
}

// Validate checks required keys, disjointness and array consistency.
func (b Bundle) Validate() error {
	for key := range b.Data {
		if _, dup := b.Constants[key]; dup {
			return fmt.Errorf("%w: %q appears in both data and constants", ErrBundle, key)
		}
	}
	if missing := missingKeys(b.Data, requiredData); len(missing) > 0 {
		return fmt.Errorf("%w: data missing %v", ErrBundle, missing)
	}
	if missing := missingKeys(b.Constants, requiredConstants); len(missing) > 0 {
		return fmt.Errorf("%w: constants missing %v", ErrBundle, missing)
	}
	for _, key := range []string{KeyW, KeyNYears} {
		if b.Constants[key].Len() != 1 {
			return fmt.Errorf("%w: %s must be a scalar", ErrBundle, key)
		}
	}
	_, hasS1 := b.Data[KeySurvs1]
	_, hasS2 := b.Data[KeySurvs2]
	_, hasRT := b.Constants[KeyYearRT]
	if hasS1 != hasS2 || hasS1 != hasRT {
		return fmt.Errorf("%w: %s, %s and %s must be given together", ErrBundle, KeySurvs1, KeySurvs2, KeyYearRT)
	}
	for _, m := range []map[string]model.Array{b.Data, b.Constants} {
		for key, arr := range m {
			want := 1
			for _, s := range arr.Shape {
				want *= s
			}
			if want != arr.Len() {
				return fmt.Errorf("%w: %q has %d values for shape %v", ErrBundle, key, arr.Len(), arr.Shape)
			}
		}
	}
	return nil
}

// Model unpacks the bundle and derives its dimensions. Shapes are checked
// against the graph later, when a model is built for a configuration.
func (b Bundle) Model() (model.Data, model.Constants, model.Dims, error) {
	if err := b.Validate(); err != nil {
		return model.Data{}, model.Constants{}, model.Dims{}, err
	}
	var err error
	ints := func(key string) []int {
		if err != nil {
			return nil
		}
		var out []int
		out, err = toInts(key, b.Constants[key])
		return out
	}
	nYears := ints(KeyNYears)
	nSites := ints(KeyNSites)
	c := model.Constants{
		W:        b.Constants[KeyW].Data[0],
		L:        b.Constants[KeyL].Clone(),
		YearObs:  ints(KeyYearObs),
		AreaObs:  ints(KeyAreaObs),
		SumAd:    append([]float64(nil), b.Constants[KeySumAd].Data...),
		SumRYear: ints(KeySumRYear),
		SumRArea: ints(KeySumRArea),
	}
	if _, ok := b.Constants[KeyYearRT]; ok {
		c.YearRT = ints(KeyYearRT)
	}
	if err != nil {
		return model.Data{}, model.Constants{}, model.Dims{}, err
	}
	data := model.Data{
		Y:          append([]float64(nil), b.Data[KeyY].Data...),
		NALineYear: b.Data[KeyNALineYear].Clone(),
		SumR:       append([]float64(nil), b.Data[KeySumR].Data...),
	}
	if s1, ok := b.Data[KeySurvs1]; ok {
		data.Survs1 = s1.Clone()
		data.Survs2 = b.Data[KeySurvs2].Clone()
	}
	if occ, ok := b.Data[KeyRodentOcc]; ok {
		data.RodentOcc = occ.Clone()
	}
	dims := model.Dims{
		NYears:   nYears[0],
		NAreas:   len(nSites),
		NSites:   nSites,
		NObs:     len(data.Y),
		NSumRObs: len(data.SumR),
		NYearsRT: len(c.YearRT),
	}
	return data, c, dims, nil
}

// Keys lists the data and constants keys in sorted order.
func (b Bundle) Keys() (data, constants []string) {
	for k := range b.Data {
		data = append(data, k)
	}
	for k := range b.Constants {
		constants = append(constants, k)
	}
	sort.Strings(data)
	sort.Strings(constants)
	return data, constants
}

// Load decodes and validates a bundle.
func Load(r io.Reader) (Bundle, error) {
	var b Bundle
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return Bundle{}, fmt.Errorf("decode bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// Write encodes a bundle as indented JSON.
func Write(w io.Writer, b Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return nil
}

// LoadFile reads a bundle from path.
func LoadFile(path string) (Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return Bundle{}, err
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// WriteFile writes a bundle to path, creating parent directories.
func WriteFile(path string, b Bundle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func missingKeys(m map[string]model.Array, keys []string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func intVector(v []int) model.Array {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return model.Vector(out)
}

func toInts(key string, a model.Array) ([]int, error) {
	out := make([]int, a.Len())
	for i, v := range a.Data {
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: %s[%d]=%v is not an integer", ErrBundle, key, i+1, v)
		}
		out[i] = int(v)
	}
	return out, nil
}
