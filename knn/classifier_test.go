package knn

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func row(label string, features ...float64) Row {
	return Row{Features: features, Label: label}
}

func newTestDataset(rows ...Row) Dataset {
	columns := make([]string, len(rows[0].Features))
	for i := range columns {
		columns[i] = "f" + string(rune('a'+i))
	}
	return Dataset{Columns: columns, LabelName: "label", Rows: rows}
}

func newTestClassifier(t *testing.T, k int, rows ...Row) *Classifier {
	t.Helper()
	c, err := NewClassifier(newTestDataset(rows...), k)
	if err != nil {
		t.Fatalf("NewClassifier returned error: %v", err)
	}
	return c
}

func TestPredictNearestRow(t *testing.T) {
	t.Parallel()

	train := []Row{row("A", 0, 0, 0), row("B", 10, 10, 10)}
	labels, err := Predict([][]float64{{1, 1, 1}, {9, 9, 9}}, train, 1)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if labels[0] != "A" || labels[1] != "B" {
		t.Fatalf("expected [A B], got %v", labels)
	}
}

func TestPredictDoesNotMutateTrain(t *testing.T) {
	t.Parallel()

	train := []Row{row("B", 10, 10), row("A", 0, 0), row("A", 1, 1)}
	if _, err := Predict([][]float64{{0, 0}}, train, 3); err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if train[0].Label != "B" || train[0].Features[0] != 10 {
		t.Fatalf("training rows were reordered or modified: %+v", train)
	}
}

func TestEvaluateIdenticalSplitIsPerfect(t *testing.T) {
	t.Parallel()

	rows := []Row{row("A", 0, 0, 0), row("B", 10, 10, 10), row("A", 1, 0, 1), row("B", 9, 11, 10)}
	eval, err := Evaluate(rows, rows, 1)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if eval.Accuracy != 100 {
		t.Fatalf("expected 100%% accuracy, got %.2f", eval.Accuracy)
	}
	if eval.Confusion["A"]["A"] != 2 || eval.Confusion["B"]["B"] != 2 {
		t.Fatalf("unexpected confusion matrix: %v", eval.Confusion)
	}
	for _, m := range eval.PerLabel {
		if m.Precision != 1 || m.Recall != 1 || m.F1 != 1 {
			t.Fatalf("expected perfect metrics for %s, got %+v", m.Label, m)
		}
	}
}

func TestEvaluateAccuracyPercent(t *testing.T) {
	t.Parallel()

	train := []Row{row("A", 0), row("B", 10)}
	test := []Row{row("A", 1), row("B", 9), row("A", 8), row("B", 7)}
	eval, err := Evaluate(test, train, 1)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if eval.Correct != 3 || eval.Accuracy != 75 {
		t.Fatalf("expected 3 correct / 75%%, got %d / %.2f", eval.Correct, eval.Accuracy)
	}
	if eval.Confusion["A"]["B"] != 1 {
		t.Fatalf("expected one A misread as B, got %v", eval.Confusion)
	}
}

func TestKNearestStableTies(t *testing.T) {
	t.Parallel()

	train := []Row{row("first", 1), row("second", -1), row("third", 1)}
	neighbors, err := KNearest(train, []float64{0}, 3)
	if err != nil {
		t.Fatalf("KNearest returned error: %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if neighbors[i].Label != want {
			t.Fatalf("neighbor %d: expected %s, got %s", i, want, neighbors[i].Label)
		}
	}
}

func TestMajorityVoteTieGoesToFirstLabel(t *testing.T) {
	t.Parallel()

	neighbors := []Neighbor{{Label: "truth"}, {Label: "lie"}, {Label: "lie"}, {Label: "truth"}}
	if got := MajorityVote(neighbors); got != "truth" {
		t.Fatalf("expected tie to resolve to truth, got %s", got)
	}

	neighbors = []Neighbor{{Label: "truth"}, {Label: "lie"}, {Label: "lie"}}
	if got := MajorityVote(neighbors); got != "lie" {
		t.Fatalf("expected majority lie, got %s", got)
	}

	if got := MajorityVote(nil); got != "" {
		t.Fatalf("expected empty label for no neighbors, got %q", got)
	}
}

func TestInvalidKAndEmptyTrain(t *testing.T) {
	t.Parallel()

	train := []Row{row("A", 0), row("B", 1)}
	for _, k := range []int{0, -1, 3} {
		if _, err := Predict([][]float64{{0}}, train, k); !errors.Is(err, ErrInvalidK) {
			t.Fatalf("k=%d: expected ErrInvalidK, got %v", k, err)
		}
	}
	if _, err := Predict([][]float64{{0}}, nil, 1); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
	if _, err := NewClassifier(Dataset{Columns: []string{"x"}}, 1); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset from NewClassifier, got %v", err)
	}
	if _, err := Predict([][]float64{{0, 1}}, train, 1); !errors.Is(err, ErrDatasetFormat) {
		t.Fatalf("expected width mismatch to be a format error, got %v", err)
	}
}

func TestClassifierPredictReportsVotes(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, 3, row("truth", 0, 0), row("truth", 0, 1), row("lie", 5, 5), row("lie", 6, 6))
	prediction, err := c.Predict([]float64{0, 0.5})
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if prediction.Label != "truth" {
		t.Fatalf("expected truth, got %s", prediction.Label)
	}
	if len(prediction.Neighbors) != 3 {
		t.Fatalf("expected 3 neighbors, got %d", len(prediction.Neighbors))
	}
	if prediction.Confidence < 0.66 || prediction.Confidence > 0.67 {
		t.Fatalf("expected confidence 2/3, got %.3f", prediction.Confidence)
	}
}

func TestClassifierStandardizationRebalancesColumns(t *testing.T) {
	t.Parallel()

	// column 0 separates the labels; column 1 is large-scale noise
	rows := []Row{
		row("truth", 0.1, 100), row("truth", 0.2, 0),
		row("lie", 0.9, 60), row("lie", 1.0, 40),
	}
	query := []float64{0.15, 55}

	raw := newTestClassifier(t, 1, rows...)
	rawPrediction, err := raw.Predict(query)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if rawPrediction.Label != "lie" {
		t.Fatalf("expected raw distances to follow the noisy column, got %s", rawPrediction.Label)
	}

	scaled, err := NewClassifier(newTestDataset(rows...), 1, WithStandardization())
	if err != nil {
		t.Fatalf("NewClassifier returned error: %v", err)
	}
	scaledPrediction, err := scaled.Predict(query)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if scaledPrediction.Label != "truth" {
		t.Fatalf("expected standardized distances to follow column 0, got %s", scaledPrediction.Label)
	}
	if !scaled.Stats().Standardized {
		t.Fatalf("expected stats to report standardization")
	}
}

func TestClassifierStatsAndReload(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, 1, row("lie", 1), row("truth", 0), row("truth", 2))
	stats := c.Stats()
	if stats.RowCount != 3 || stats.LabelCount != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Labels[0].Label != "lie" || stats.Labels[1].Rows != 2 {
		t.Fatalf("expected sorted label stats, got %+v", stats.Labels)
	}

	if err := c.Reload(newTestDataset(row("calm", 0))); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
	prediction, err := c.Predict([]float64{5})
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if prediction.Label != "calm" {
		t.Fatalf("expected reloaded dataset to be used, got %s", prediction.Label)
	}
}

func TestReloadRejectsChangedColumns(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, 1, row("lie", 1, 1, 1), row("truth", 0, 0, 0))

	err := c.Reload(newTestDataset(row("lie", 1, 1), row("truth", 0, 0)))
	if !errors.Is(err, ErrColumnMismatch) {
		t.Fatalf("expected ErrColumnMismatch, got %v", err)
	}

	renamed := newTestDataset(row("lie", 1, 1, 1))
	renamed.Columns[2] = "other"
	if err := c.Reload(renamed); !errors.Is(err, ErrColumnMismatch) {
		t.Fatalf("expected ErrColumnMismatch for renamed column, got %v", err)
	}

	if got := c.Stats().RowCount; got != 2 {
		t.Fatalf("expected the original rows to be kept, got %d", got)
	}
	if _, err := c.Predict([]float64{1, 1, 1}); err != nil {
		t.Fatalf("Predict after rejected reload returned error: %v", err)
	}
}

func TestClassifierConcurrentPredict(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, 1, row("A", 0), row("B", 10))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := c.Predict([]float64{float64(j % 11)}); err != nil {
					t.Errorf("Predict returned error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestLoadDataset(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dataset.csv")
	content := "blink_rate,lip_pursing_count,blushing_count,label\n" +
		"0.5,1,0,truth\n" +
		"1.25, 4, 2, lie\n" +
		"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dataset: %v", err)
	}

	ds, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset returned error: %v", err)
	}
	if len(ds.Rows) != 2 {
		t.Fatalf("expected 2 rows (trailing blank line skipped), got %d", len(ds.Rows))
	}
	if strings.Join(ds.Columns, ",") != "blink_rate,lip_pursing_count,blushing_count" {
		t.Fatalf("unexpected columns %v", ds.Columns)
	}
	if ds.Rows[1].Label != "lie" || ds.Rows[1].Features[0] != 1.25 {
		t.Fatalf("unexpected second row %+v", ds.Rows[1])
	}
}

func TestLoadDatasetRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"non numeric":  "a,b,label\n1,x,truth\n",
		"short row":    "a,b,label\n1,2,truth\n1,lie\n",
		"empty label":  "a,b,label\n1,2,\n",
		"label only":   "label\ntruth\n",
		"empty file":   "",
		"infinite val": "a,label\nInf,truth\n",
	}
	for name, content := range cases {
		if _, err := ParseDataset(strings.NewReader(content)); !errors.Is(err, ErrDatasetFormat) {
			t.Errorf("%s: expected ErrDatasetFormat, got %v", name, err)
		}
	}

	if _, err := LoadDataset(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, ErrDatasetFormat) {
		t.Fatalf("expected missing file to be a format error, got %v", err)
	}
}

func TestTrainTestSplit(t *testing.T) {
	t.Parallel()

	rows := []Row{row("a", 1), row("b", 2), row("c", 3), row("d", 4), row("e", 5), row("f", 6), row("g", 7)}
	train, test, err := TrainTestSplit(rows, 0.7)
	if err != nil {
		t.Fatalf("TrainTestSplit returned error: %v", err)
	}
	if len(train) != 4 || len(test) != 3 {
		t.Fatalf("expected 4/3 split, got %d/%d", len(train), len(test))
	}
	if train[0].Label != "a" || test[0].Label != "e" {
		t.Fatalf("expected prefix split, got train[0]=%s test[0]=%s", train[0].Label, test[0].Label)
	}

	if _, _, err := TrainTestSplit(rows, 1.5); !errors.Is(err, ErrDatasetFormat) {
		t.Fatalf("expected ErrDatasetFormat for bad ratio, got %v", err)
	}
}

func TestAnalyzeFeatures(t *testing.T) {
	t.Parallel()

	ds := newTestDataset(row("truth", 0, 10), row("truth", 2, 10), row("lie", 4, 10))
	analysis := AnalyzeFeatures(ds)

	if analysis.MinValues[0] != 0 || analysis.MaxValues[0] != 4 || analysis.MeanValues[0] != 2 {
		t.Fatalf("unexpected column 0 stats: %+v", analysis)
	}
	if analysis.LabelMeans["truth"][0] != 1 || analysis.LabelMeans["lie"][0] != 4 {
		t.Fatalf("unexpected label means: %v", analysis.LabelMeans)
	}

	issues := analysis.CheckScaleIssues()
	found := false
	for _, issue := range issues {
		if strings.Contains(issue, "constant") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected constant column to be flagged, got %v", issues)
	}

	var sb strings.Builder
	analysis.PrintReport(&sb)
	if !strings.Contains(sb.String(), "Feature Scale Analysis") {
		t.Fatalf("report missing header: %s", sb.String())
	}
}
