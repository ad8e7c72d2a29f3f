package posterior

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"sort"
	"strings"

	"idsm/internal/model"
)

// Format names one archive inside a run's artifact directory.
type Format string

const (
	FormatDraws     Format = "draws.json"
	FormatTidy      Format = "tidy.csv"
	FormatSummary   Format = "summary.csv"
	FormatAbundance Format = "abundance.png"
	FormatHTML      Format = "summary.html"
)

// ArchiveFormats lists every artifact written for a completed run.
var ArchiveFormats = []Format{FormatDraws, FormatTidy, FormatSummary, FormatAbundance, FormatHTML}

// Artifact is a rendered archive ready to be stored.
type Artifact struct {
	Name        string
	Format      Format
	ContentType string
	Payload     []byte
	Metadata    map[string]any
}

// ArchivePrefix is the seed-stamped directory holding a run's artifacts.
func ArchivePrefix(originSeed, runSeed int64) string {
	return fmt.Sprintf("idsm_%d_%d/", originSeed, runSeed)
}

// ArchiveKey is the object key of one format for a run.
func ArchiveKey(originSeed, runSeed int64, format Format) string {
	return ArchivePrefix(originSeed, runSeed) + string(format)
}

// Materialize renders the requested formats, all of them when none are given.
func Materialize(d Draws, axes Axes, formats ...Format) ([]Artifact, error) {
	if len(formats) == 0 {
		formats = ArchiveFormats
	}
	rows, err := Tidy(d, axes)
	if err != nil {
		return nil, err
	}
	summaries := Summarize(rows)
	meta := map[string]any{
		"origin_seed": d.OriginSeed,
		"run_seed":    d.RunSeed,
		"variant":     d.Variant,
		"chains":      len(d.Chains),
	}

	out := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		var (
			payload     []byte
			contentType string
		)
		switch format {
		case FormatDraws:
			buf := &bytes.Buffer{}
			if err := WriteDraws(buf, d); err != nil {
				return nil, err
			}
			payload, contentType = buf.Bytes(), "application/json"
		case FormatTidy:
			buf := &bytes.Buffer{}
			if err := WriteTidyCSV(buf, rows); err != nil {
				return nil, fmt.Errorf("render tidy: %w", err)
			}
			payload, contentType = buf.Bytes(), "text/csv"
		case FormatSummary:
			buf := &bytes.Buffer{}
			if err := WriteSummaryCSV(buf, summaries); err != nil {
				return nil, fmt.Errorf("render summary: %w", err)
			}
			payload, contentType = buf.Bytes(), "text/csv"
		case FormatAbundance:
			p, err := buildPNG(AbundanceByYear(summaries))
			if err != nil {
				return nil, fmt.Errorf("render abundance: %w", err)
			}
			payload, contentType = p, "image/png"
		case FormatHTML:
			payload, contentType = buildHTML(d, summaries), "text/html"
		default:
			return nil, fmt.Errorf("unsupported artifact format %s", format)
		}
		out = append(out, Artifact{
			Name:        ArchiveKey(d.OriginSeed, d.RunSeed, format),
			Format:      format,
			ContentType: contentType,
			Payload:     payload,
			Metadata:    cloneMeta(meta),
		})
	}
	return out, nil
}

// WriteDraws encodes draws as JSON.
func WriteDraws(w io.Writer, d Draws) error {
	if err := json.NewEncoder(w).Encode(d); err != nil {
		return fmt.Errorf("marshal draws: %w", err)
	}
	return nil
}

// ReadDraws decodes output of WriteDraws.
func ReadDraws(r io.Reader) (Draws, error) {
	var d Draws
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return Draws{}, fmt.Errorf("unmarshal draws: %w", err)
	}
	return d, nil
}

// AbundanceByYear sums posterior medians of N_tot_exp over areas, one entry
// per year in ascending order.
func AbundanceByYear(summaries []Summary) []float64 {
	totals := make(map[int]float64)
	for _, s := range summaries {
		if s.Parameter != model.NodeNTotExp {
			continue
		}
		totals[s.Year] += s.Median
	}
	years := make([]int, 0, len(totals))
	for y := range totals {
		years = append(years, y)
	}
	sort.Ints(years)
	out := make([]float64, len(years))
	for i, y := range years {
		out[i] = totals[y]
	}
	return out
}

func buildHTML(d Draws, summaries []Summary) []byte {
	buf := &strings.Builder{}
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(fmt.Sprintf("IDSM %s origin %d run %d", d.Variant, d.OriginSeed, d.RunSeed)))
	buf.WriteString("</title></head><body><table>")
	buf.WriteString("<thead><tr>")
	for _, name := range summaryHeader {
		buf.WriteString("<th>")
		buf.WriteString(name)
		buf.WriteString("</th>")
	}
	buf.WriteString("</tr></thead><tbody>")
	for _, s := range summaries {
		buf.WriteString("<tr>")
		cells := []string{
			s.Parameter, s.Index,
			fmt.Sprint(s.Area), fmt.Sprint(s.AgeClass), fmt.Sprint(s.Site), fmt.Sprint(s.Year),
			fmt.Sprint(s.N),
			formatFloat(s.Mean), formatFloat(s.SD), formatFloat(s.Median),
			formatFloat(s.Lower), formatFloat(s.Upper), formatFloat(s.Rhat),
		}
		for _, cell := range cells {
			buf.WriteString("<td>")
			buf.WriteString(html.EscapeString(cell))
			buf.WriteString("</td>")
		}
		buf.WriteString("</tr>")
	}
	buf.WriteString("</tbody></table></body></html>")
	return []byte(buf.String())
}

func buildPNG(values []float64) ([]byte, error) {
	width := 400
	height := 200
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	peak := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	count := len(values)
	if count == 0 {
		count = 1
	}
	barWidth := width / count
	if barWidth < 1 {
		barWidth = 1
	}
	for i, v := range values {
		x0 := i * barWidth
		x1 := x0 + barWidth - 2
		if x1 <= x0 {
			x1 = x0 + 1
		}
		frac := 0.0
		if peak > 0 {
			frac = v / peak
		}
		y0 := height - 10 - int(float64(height-20)*frac)
		y1 := height - 10
		draw.Draw(img, image.Rect(x0, y0, x1, y1), &image.Uniform{color.RGBA{0, 102, 204, 255}}, image.Point{}, draw.Src)
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cloneMeta(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
