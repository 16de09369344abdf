package knn

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrDatasetFormat marks a dataset file that cannot be used as a whole:
	// missing, malformed, or with an invalid split ratio.
	ErrDatasetFormat = errors.New("dataset format error")
	// ErrEmptyDataset is returned when a prediction is requested against no
	// training rows.
	ErrEmptyDataset = errors.New("empty dataset")
	// ErrInvalidK is returned when k is not in [1, len(train)].
	ErrInvalidK = errors.New("invalid k")
	// ErrColumnMismatch is returned by Reload when the feature columns change.
	ErrColumnMismatch = errors.New("feature columns mismatch")
)

// LoadDataset reads a CSV dataset: a header row, numeric feature columns and
// a final label column. Any bad row fails the whole load.
func LoadDataset(path string) (Dataset, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: failed to open %s: %v", ErrDatasetFormat, path, err)
	}
	defer file.Close()

	ds, err := ParseDataset(file)
	if err != nil {
		return Dataset{}, fmt.Errorf("%s: %w", path, err)
	}
	ds.SourcePath = path
	return ds, nil
}

// ParseDataset parses CSV dataset content from r.
func ParseDataset(r io.Reader) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Dataset{}, fmt.Errorf("%w: missing header", ErrDatasetFormat)
		}
		return Dataset{}, fmt.Errorf("%w: %v", ErrDatasetFormat, err)
	}
	if len(header) < 2 {
		return Dataset{}, fmt.Errorf("%w: header needs at least one feature and a label column", ErrDatasetFormat)
	}

	columns := make([]string, len(header)-1)
	for i, name := range header[:len(header)-1] {
		columns[i] = strings.TrimSpace(name)
	}
	ds := Dataset{
		Columns:   columns,
		LabelName: strings.TrimSpace(header[len(header)-1]),
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("%w: %v", ErrDatasetFormat, err)
		}
		line, _ := reader.FieldPos(0)
		if blankRecord(record) {
			continue
		}
		if len(record) != len(header) {
			return Dataset{}, fmt.Errorf("%w: line %d has %d fields, expected %d",
				ErrDatasetFormat, line, len(record), len(header))
		}

		row := Row{Features: make([]float64, len(columns))}
		for i := range columns {
			value, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
				return Dataset{}, fmt.Errorf("%w: line %d column %q: not a number: %q",
					ErrDatasetFormat, line, columns[i], record[i])
			}
			row.Features[i] = value
		}
		row.Label = strings.TrimSpace(record[len(record)-1])
		if row.Label == "" {
			return Dataset{}, fmt.Errorf("%w: line %d has an empty label", ErrDatasetFormat, line)
		}
		ds.Rows = append(ds.Rows, row)
	}

	return ds, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// TrainTestSplit cuts rows at floor(ratio * len(rows)); the prefix is the
// training set. Rows are not shuffled.
func TrainTestSplit(rows []Row, ratio float64) (train, test []Row, err error) {
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return nil, nil, fmt.Errorf("%w: split ratio %v outside [0,1]", ErrDatasetFormat, ratio)
	}
	cut := int(math.Floor(ratio * float64(len(rows))))
	return rows[:cut:cut], rows[cut:], nil
}
