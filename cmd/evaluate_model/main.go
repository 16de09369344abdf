package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"lie-detector/knn"
	"lie-detector/utils"
)

// EvaluationConfig holds evaluation parameters
type EvaluationConfig struct {
	DatasetPath string
	K           int
	SplitRatio  float64
	Standardize bool
	ReportPath  string
	Verbose     bool
}

// EvaluationReport contains the evaluation results
type EvaluationReport struct {
	Timestamp      time.Time
	DatasetPath    string
	TrainRows      int
	TestRows       int
	Evaluation     knn.Evaluation
	ScaleIssues    []string
	ProcessingTime time.Duration
}

func main() {
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Model Evaluation Pipeline ===")
	log.Printf("Dataset: %s\n", config.DatasetPath)
	log.Printf("K neighbors: %d\n", config.K)
	log.Printf("Split ratio: %.2f\n", config.SplitRatio)
	log.Println()

	started := time.Now()

	dataset, err := knn.LoadDataset(config.DatasetPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load dataset: %v", err)
	}

	train, test, err := knn.TrainTestSplit(dataset.Rows, config.SplitRatio)
	if err != nil {
		log.Fatalf("ERROR: Failed to split dataset: %v", err)
	}
	log.Printf("Train set: %d rows\n", len(train))
	log.Printf("Test set: %d rows\n", len(test))

	var opts []knn.Option
	if config.Standardize {
		opts = append(opts, knn.WithStandardization())
	}
	trainSet := knn.Dataset{Columns: dataset.Columns, LabelName: dataset.LabelName, Rows: train}
	classifier, err := knn.NewClassifier(trainSet, config.K, opts...)
	if err != nil {
		log.Fatalf("ERROR: Failed to build classifier: %v", err)
	}

	evaluation, err := classifier.Evaluate(test)
	if err != nil {
		log.Fatalf("ERROR: Evaluation failed: %v", err)
	}

	for i, row := range test {
		fmt.Printf("> predicted=%s, actual=%s\n", evaluation.Predictions[i], row.Label)
	}

	analysis := knn.AnalyzeFeatures(trainSet)
	report := EvaluationReport{
		Timestamp:      started,
		DatasetPath:    config.DatasetPath,
		TrainRows:      len(train),
		TestRows:       len(test),
		Evaluation:     evaluation,
		ScaleIssues:    analysis.CheckScaleIssues(),
		ProcessingTime: time.Since(started),
	}

	printEvaluationReport(report, config.Verbose)

	if config.ReportPath != "" {
		if err := saveReport(report, config.ReportPath); err != nil {
			log.Printf("WARNING: Failed to save report: %v\n", err)
		} else {
			log.Printf("\nReport saved to: %s\n", config.ReportPath)
		}
	}

	log.Println()
	printVerdict(report)
}

func parseFlags() EvaluationConfig {
	config := EvaluationConfig{}

	flag.StringVar(&config.DatasetPath, "dataset", utils.GetEnv("DATASET_PATH", "files/dataset.csv"),
		"Path to the labelled CSV dataset")
	flag.IntVar(&config.K, "k", utils.GetEnvInt("KNN_K", 3),
		"Number of nearest neighbors")
	flag.Float64Var(&config.SplitRatio, "split", 0.7,
		"Fraction of rows used for training (the rest is the test set)")
	flag.BoolVar(&config.Standardize, "standardize", false,
		"Z-score feature columns before computing distances")
	flag.StringVar(&config.ReportPath, "report", "evaluation_report.json",
		"Path to save evaluation report (empty to skip)")
	flag.BoolVar(&config.Verbose, "verbose", false,
		"Print the feature scale analysis")

	flag.Parse()

	return config
}

func printEvaluationReport(report EvaluationReport, verbose bool) {
	eval := report.Evaluation

	log.Println()
	log.Println("=" + strings.Repeat("=", 79))
	log.Println("EVALUATION RESULTS")
	log.Println("=" + strings.Repeat("=", 79))
	log.Println()

	log.Printf("Accuracy: %.2f%% (%d/%d correct)\n", eval.Accuracy, eval.Correct, eval.Total)
	log.Printf("Processing Time: %.3f seconds\n", report.ProcessingTime.Seconds())
	log.Println()

	log.Println("Per-Label Performance:")
	log.Println(strings.Repeat("-", 80))
	log.Printf("%-20s %9s %9s %9s %8s\n", "Label", "Precision", "Recall", "F1", "Support")
	log.Println(strings.Repeat("-", 80))
	for _, m := range eval.PerLabel {
		log.Printf("%-20s %8.1f%% %8.1f%% %9.3f %8d\n",
			m.Label, m.Precision*100, m.Recall*100, m.F1, m.Support)
	}
	log.Println()

	printConfusionMatrix(eval.Confusion)

	if len(report.ScaleIssues) > 0 {
		log.Println("Feature scale warnings:")
		for _, issue := range report.ScaleIssues {
			log.Printf("  ⚠ %s\n", issue)
		}
		log.Println()
	}
	if verbose {
		ds, err := knn.LoadDataset(report.DatasetPath)
		if err == nil {
			analysis := knn.AnalyzeFeatures(ds)
			analysis.PrintReport(os.Stdout)
		}
	}
}

func printConfusionMatrix(matrix map[string]map[string]int) {
	if len(matrix) == 0 {
		return
	}

	log.Println("Confusion Matrix:")
	log.Println(strings.Repeat("-", 80))

	seen := map[string]bool{}
	var labels []string
	for actual, row := range matrix {
		if !seen[actual] {
			seen[actual] = true
			labels = append(labels, actual)
		}
		for predicted := range row {
			if !seen[predicted] {
				seen[predicted] = true
				labels = append(labels, predicted)
			}
		}
	}
	sort.Strings(labels)

	fmt.Printf("%-15s", "Actual \\ Pred")
	for _, label := range labels {
		fmt.Printf(" %6s", truncate(label, 6))
	}
	fmt.Println()

	for _, actual := range labels {
		fmt.Printf("%-15s", truncate(actual, 15))
		for _, predicted := range labels {
			if count := matrix[actual][predicted]; count > 0 {
				fmt.Printf(" %6d", count)
			} else {
				fmt.Printf(" %6s", ".")
			}
		}
		fmt.Println()
	}
	log.Println()
}

func printVerdict(report EvaluationReport) {
	log.Println("=" + strings.Repeat("=", 79))
	log.Println("VERDICT")
	log.Println("=" + strings.Repeat("=", 79))

	accuracy := report.Evaluation.Accuracy

	var verdict string
	var recommendation string

	switch {
	case accuracy >= 90:
		verdict = "✓ EXCELLENT"
		recommendation = "The cue features separate the labels well."
	case accuracy >= 80:
		verdict = "✓ GOOD"
		recommendation = "Consider recording more sessions to widen the dataset."
	case accuracy >= 70:
		verdict = "⚠ FAIR"
		recommendation = "Try another k or enable -standardize."
	default:
		verdict = "✗ POOR"
		recommendation = "Check the dataset labels and feature columns."
	}

	log.Printf("Overall Assessment: %s\n", verdict)
	log.Printf("Accuracy: %.2f%% with k=%d\n", accuracy, report.Evaluation.K)
	log.Printf("Recommendation: %s\n", recommendation)
	log.Println("=" + strings.Repeat("=", 79))
}

func saveReport(report EvaluationReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-2] + ".."
}
