package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrManifest marks malformed seed manifests.
var ErrManifest = errors.New("batch: invalid manifest")

// ReadManifest parses a two-column CSV of origin and run seeds. A first row
// that does not parse as integers is treated as a header.
func ReadManifest(r io.Reader) ([]Task, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	var tasks []Task
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifest, err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) != 2 {
			return nil, fmt.Errorf("%w: row %d has %d columns, want 2", ErrManifest, row, len(record))
		}
		origin, errO := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		run, errR := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
		if errO != nil || errR != nil {
			if row == 1 && errO != nil && errR != nil {
				continue
			}
			return nil, fmt.Errorf("%w: row %d: seeds must be integers, got %q", ErrManifest, row, record)
		}
		tasks = append(tasks, Task{OriginSeed: origin, RunSeed: run})
	}
	return tasks, nil
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadManifest(f)
}

// WriteManifest writes tasks with a header row.
func WriteManifest(w io.Writer, tasks []Task) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"origin_seed", "run_seed"}); err != nil {
		return err
	}
	for _, t := range tasks {
		if err := cw.Write([]string{strconv.FormatInt(t.OriginSeed, 10), strconv.FormatInt(t.RunSeed, 10)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
