package posterior

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// NA encodes NaN values in CSV output.
const NA = "NA"

var (
	tidyHeader    = []string{"parameter", "index", "area", "age_class", "site", "year", "chain", "iteration", "value"}
	summaryHeader = []string{"parameter", "index", "area", "age_class", "site", "year", "n", "mean", "sd", "median", "lower", "upper", "rhat"}
)

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return NA
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(s string) (float64, error) {
	if s == NA {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteTidyCSV writes rows with a header line. Values use the shortest
// representation that parses back to the same float.
func WriteTidyCSV(w io.Writer, rows []TidyRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tidyHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Parameter, r.Index,
			strconv.Itoa(r.Area), strconv.Itoa(r.AgeClass), strconv.Itoa(r.Site), strconv.Itoa(r.Year),
			strconv.Itoa(r.Chain), strconv.Itoa(r.Iteration),
			formatFloat(r.Value),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTidyCSV parses output of WriteTidyCSV.
func ReadTidyCSV(r io.Reader) ([]TidyRow, error) {
	records, err := readRecords(r, tidyHeader)
	if err != nil {
		return nil, err
	}
	rows := make([]TidyRow, 0, len(records))
	for line, rec := range records {
		ints, err := parseInts(rec[2:8])
		if err != nil {
			return nil, fmt.Errorf("posterior: tidy line %d: %w", line+2, err)
		}
		v, err := parseFloat(rec[8])
		if err != nil {
			return nil, fmt.Errorf("posterior: tidy line %d: %w", line+2, err)
		}
		rows = append(rows, TidyRow{
			Parameter: rec[0],
			Index:     rec[1],
			Area:      ints[0],
			AgeClass:  ints[1],
			Site:      ints[2],
			Year:      ints[3],
			Chain:     ints[4],
			Iteration: ints[5],
			Value:     v,
		})
	}
	return rows, nil
}

// WriteSummaryCSV writes summaries with a header line.
func WriteSummaryCSV(w io.Writer, summaries []Summary) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(summaryHeader); err != nil {
		return err
	}
	for _, s := range summaries {
		record := []string{
			s.Parameter, s.Index,
			strconv.Itoa(s.Area), strconv.Itoa(s.AgeClass), strconv.Itoa(s.Site), strconv.Itoa(s.Year),
			strconv.Itoa(s.N),
			formatFloat(s.Mean), formatFloat(s.SD), formatFloat(s.Median),
			formatFloat(s.Lower), formatFloat(s.Upper), formatFloat(s.Rhat),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadSummaryCSV parses output of WriteSummaryCSV.
func ReadSummaryCSV(r io.Reader) ([]Summary, error) {
	records, err := readRecords(r, summaryHeader)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(records))
	for line, rec := range records {
		ints, err := parseInts(rec[2:7])
		if err != nil {
			return nil, fmt.Errorf("posterior: summary line %d: %w", line+2, err)
		}
		floats := make([]float64, 6)
		for i, field := range rec[7:13] {
			if floats[i], err = parseFloat(field); err != nil {
				return nil, fmt.Errorf("posterior: summary line %d: %w", line+2, err)
			}
		}
		out = append(out, Summary{
			Parameter: rec[0],
			Index:     rec[1],
			Area:      ints[0],
			AgeClass:  ints[1],
			Site:      ints[2],
			Year:      ints[3],
			N:         ints[4],
			Mean:      floats[0],
			SD:        floats[1],
			Median:    floats[2],
			Lower:     floats[3],
			Upper:     floats[4],
			Rhat:      floats[5],
		})
	}
	return out, nil
}

func readRecords(r io.Reader, header []string) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("posterior: read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("posterior: missing csv header")
	}
	for i, name := range header {
		if records[0][i] != name {
			return nil, fmt.Errorf("posterior: unexpected column %q at %d, want %q", records[0][i], i, name)
		}
	}
	return records[1:], nil
}

func parseInts(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
