package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"lie-detector/knn"
	"lie-detector/utils"
)

func main() {
	datasetPath := flag.String("dataset", utils.GetEnv("DATASET_PATH", "files/dataset.csv"), "Path to the labelled CSV dataset")
	outputJSON := flag.String("json", "", "Path to save the analysis as JSON (empty to skip)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime)

	dataset, err := knn.LoadDataset(*datasetPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load dataset: %v", err)
	}
	log.Printf("Loaded %d rows, %d feature columns, labels %v\n",
		len(dataset.Rows), dataset.Width(), dataset.Labels())

	analysis := knn.AnalyzeFeatures(dataset)
	analysis.PrintReport(os.Stdout)

	issues := analysis.CheckScaleIssues()
	if len(issues) == 0 {
		log.Println("✓ No feature scale issues found")
	} else {
		log.Printf("Found %d potential issues:\n", len(issues))
		for _, issue := range issues {
			log.Printf("  ⚠ %s\n", issue)
		}
	}

	if *outputJSON != "" {
		data, err := json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			log.Fatalf("ERROR: Failed to encode analysis: %v", err)
		}
		if err := os.WriteFile(*outputJSON, data, 0644); err != nil {
			log.Fatalf("ERROR: Failed to save analysis: %v", err)
		}
		log.Printf("Analysis saved to: %s\n", *outputJSON)
	}
}
