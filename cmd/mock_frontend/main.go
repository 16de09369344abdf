package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"lie-detector/knn"
)

type classifyRequest struct {
	Features [][]float64 `json:"features"`
}

type classifyResponse struct {
	Predictions []knn.Prediction `json:"predictions"`
}

// mock_frontend replays labelled dataset rows against a running server's
// classification endpoint, as a frontend posting checkpoint features would.
func main() {
	datasetPath := flag.String("dataset", "files/dataset.csv", "Labelled CSV whose rows are posted as queries")
	endpoint := flag.String("url", "http://localhost:5000/api/classify", "Classification endpoint")
	delay := flag.Duration("delay", 500*time.Millisecond, "Delay between requests")
	limit := flag.Int("n", 0, "Number of rows to post (0 for all)")
	flag.Parse()

	dataset, err := knn.LoadDataset(*datasetPath)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}

	rows := dataset.Rows
	if *limit > 0 && *limit < len(rows) {
		rows = rows[:*limit]
	}

	client := &http.Client{Timeout: 10 * time.Second}
	fmt.Printf("Posting %d row(s) to %s\n\n", len(rows), *endpoint)

	correct := 0
	for idx, row := range rows {
		prediction, err := postRow(client, *endpoint, row.Features)
		if err != nil {
			log.Printf("request failed for row %d: %v\n", idx+1, err)
		} else {
			mark := "✗"
			if prediction.Label == row.Label {
				mark = "✓"
				correct++
			}
			fmt.Printf("→ row %d: predicted=%s (%.0f%%) actual=%s %s\n",
				idx+1, prediction.Label, prediction.Confidence*100, row.Label, mark)
		}

		if idx < len(rows)-1 && *delay > 0 {
			time.Sleep(*delay)
		}
	}

	if len(rows) > 0 {
		fmt.Printf("\n%d/%d matched their label\n", correct, len(rows))
	}
}

func postRow(client *http.Client, endpoint string, features []float64) (knn.Prediction, error) {
	payload, err := json.Marshal(classifyRequest{Features: [][]float64{features}})
	if err != nil {
		return knn.Prediction{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return knn.Prediction{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return knn.Prediction{}, fmt.Errorf("post classification request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return knn.Prediction{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return knn.Prediction{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded classifyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return knn.Prediction{}, fmt.Errorf("decode classification response: %w", err)
	}
	if len(decoded.Predictions) == 0 {
		return knn.Prediction{}, fmt.Errorf("no predictions returned")
	}
	return decoded.Predictions[0], nil
}
