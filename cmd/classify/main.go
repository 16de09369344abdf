package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"lie-detector/knn"
	"lie-detector/utils"
)

// ClassifyConfig holds the command's parameters
type ClassifyConfig struct {
	DatasetPath string
	QueryPath   string
	OutputCSV   string
	K           int
	Standardize bool
}

func main() {
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Batch Classification ===")
	log.Printf("Dataset: %s\n", config.DatasetPath)
	log.Printf("Queries: %s\n", config.QueryPath)
	log.Printf("K neighbors: %d\n", config.K)

	var opts []knn.Option
	if config.Standardize {
		opts = append(opts, knn.WithStandardization())
	}
	classifier, err := knn.NewClassifierFromFile(config.DatasetPath, config.K, opts...)
	if err != nil {
		log.Fatalf("ERROR: Failed to load classifier: %v", err)
	}

	in, err := os.Open(config.QueryPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to open queries: %v", err)
	}
	defer in.Close()

	queries, err := readQueries(in, classifier.Columns())
	if err != nil {
		log.Fatalf("ERROR: Failed to read queries: %v", err)
	}
	log.Printf("Loaded %d queries\n", len(queries))

	predictions, err := classifier.PredictBatch(queries)
	if err != nil {
		log.Fatalf("ERROR: Classification failed: %v", err)
	}

	counts := map[string]int{}
	for i, p := range predictions {
		counts[p.Label]++
		fmt.Printf("> row=%d, predicted=%s, confidence=%.2f\n", i+1, p.Label, p.Confidence)
	}
	for label, n := range counts {
		log.Printf("  %s: %d\n", label, n)
	}

	if config.OutputCSV != "" {
		if err := saveCSV(predictions, config.OutputCSV); err != nil {
			log.Printf("WARNING: Failed to save CSV: %v\n", err)
		} else {
			log.Printf("Predictions saved to: %s\n", config.OutputCSV)
		}
	}
}

func parseFlags() ClassifyConfig {
	config := ClassifyConfig{}

	flag.StringVar(&config.DatasetPath, "dataset", utils.GetEnv("DATASET_PATH", "files/dataset.csv"),
		"Path to the labelled CSV dataset")
	flag.StringVar(&config.QueryPath, "queries", "queries.csv",
		"CSV of rows to classify; its header names the feature columns")
	flag.StringVar(&config.OutputCSV, "output", "",
		"Path to save predictions as CSV (empty to skip)")
	flag.IntVar(&config.K, "k", utils.GetEnvInt("KNN_K", 3),
		"Number of nearest neighbors")
	flag.BoolVar(&config.Standardize, "standardize", false,
		"Z-score feature columns before computing distances")

	flag.Parse()

	return config
}

// readQueries maps the query file's header onto columns. Extra columns such
// as a label are ignored; a missing column is an error.
func readQueries(r io.Reader, columns []string) ([][]float64, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	positions := make([]int, len(columns))
	for i, col := range columns {
		pos, ok := index[strings.ToLower(col)]
		if !ok {
			return nil, fmt.Errorf("query file lacks column %q", col)
		}
		positions[i] = pos
	}

	var queries [][]float64
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		query := make([]float64, len(positions))
		for i, pos := range positions {
			if pos >= len(record) {
				return nil, fmt.Errorf("line %d: missing value for %s", line, columns[i])
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[pos]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, columns[i], err)
			}
			query[i] = v
		}
		queries = append(queries, query)
	}
	return queries, nil
}

func saveCSV(predictions []knn.Prediction, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"row", "predicted", "confidence"}); err != nil {
		return err
	}
	for i, p := range predictions {
		record := []string{
			strconv.Itoa(i + 1),
			p.Label,
			strconv.FormatFloat(p.Confidence, 'f', 4, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}
