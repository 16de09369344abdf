// Package knn implements the k-nearest-neighbor classifier that labels a
// checkpoint's cue statistics against a labelled dataset.
//
// Distances are Euclidean over the raw (or, optionally, z-score standardized)
// feature columns. Neighbors are ordered by a stable sort, so equal distances
// keep dataset order, and the vote goes to the most frequent label with ties
// resolved in favour of the label met first. Both rules make predictions
// reproducible for a given dataset file.
package knn

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"lie-detector/utils"
)

type distancePair struct {
	index    int
	distance float64
}

// Distance is the Euclidean distance between two feature vectors of equal
// length.
func Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func checkTrain(train []Row, k int) error {
	if len(train) == 0 {
		return ErrEmptyDataset
	}
	if k <= 0 || k > len(train) {
		return fmt.Errorf("%w: k=%d with %d training rows", ErrInvalidK, k, len(train))
	}
	return nil
}

func checkWidth(train []Row, query []float64) error {
	if want := len(train[0].Features); len(query) != want {
		return fmt.Errorf("%w: query has %d features, dataset has %d", ErrDatasetFormat, len(query), want)
	}
	return nil
}

// KNearest returns the k training rows closest to query, nearest first.
func KNearest(train []Row, query []float64, k int) ([]Neighbor, error) {
	if err := checkTrain(train, k); err != nil {
		return nil, err
	}
	if err := checkWidth(train, query); err != nil {
		return nil, err
	}
	return kNearest(train, query, k), nil
}

func kNearest(train []Row, query []float64, k int) []Neighbor {
	distances := make([]distancePair, len(train))
	for i := range train {
		distances[i] = distancePair{index: i, distance: Distance(query, train[i].Features)}
	}
	sort.SliceStable(distances, func(i, j int) bool {
		return distances[i].distance < distances[j].distance
	})

	neighbors := make([]Neighbor, k)
	for i := 0; i < k; i++ {
		pair := distances[i]
		neighbors[i] = Neighbor{Index: pair.index, Label: train[pair.index].Label, Distance: pair.distance}
	}
	return neighbors
}

// MajorityVote returns the most frequent label among neighbors. Ties go to
// the label encountered first.
func MajorityVote(neighbors []Neighbor) string {
	votes := tally(neighbors)
	if len(votes) == 0 {
		return ""
	}
	return votes[0].Label
}

// tally counts votes in first-encountered order, then orders them by count
// with a stable sort so that order breaks ties.
func tally(neighbors []Neighbor) []Vote {
	position := make(map[string]int)
	var votes []Vote
	for _, n := range neighbors {
		idx, ok := position[n.Label]
		if !ok {
			idx = len(votes)
			position[n.Label] = idx
			votes = append(votes, Vote{Label: n.Label})
		}
		votes[idx].Count++
	}
	sort.SliceStable(votes, func(i, j int) bool { return votes[i].Count > votes[j].Count })
	return votes
}

func classify(train []Row, query []float64, k int) Prediction {
	neighbors := kNearest(train, query, k)
	votes := tally(neighbors)
	return Prediction{
		Label:      votes[0].Label,
		Confidence: float64(votes[0].Count) / float64(len(neighbors)),
		Votes:      votes,
		Neighbors:  neighbors,
	}
}

// Predict labels each query against train. train is only read.
func Predict(queries [][]float64, train []Row, k int) ([]string, error) {
	if err := checkTrain(train, k); err != nil {
		return nil, err
	}
	labels := make([]string, len(queries))
	for i, query := range queries {
		if err := checkWidth(train, query); err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		labels[i] = classify(train, query, k).Label
	}
	return labels, nil
}

// Evaluate classifies every test row against train and reports accuracy as
// a percentage together with per-label metrics and a confusion matrix.
func Evaluate(test, train []Row, k int) (Evaluation, error) {
	if err := checkTrain(train, k); err != nil {
		return Evaluation{}, err
	}
	if len(test) == 0 {
		return Evaluation{}, fmt.Errorf("%w: no test rows", ErrEmptyDataset)
	}

	eval := Evaluation{
		K:           k,
		Total:       len(test),
		Predictions: make([]string, len(test)),
		Confusion:   make(map[string]map[string]int),
	}
	for i, row := range test {
		if err := checkWidth(train, row.Features); err != nil {
			return Evaluation{}, fmt.Errorf("test row %d: %w", i, err)
		}
		predicted := classify(train, row.Features, k).Label
		eval.Predictions[i] = predicted
		if predicted == row.Label {
			eval.Correct++
		}
		if eval.Confusion[row.Label] == nil {
			eval.Confusion[row.Label] = make(map[string]int)
		}
		eval.Confusion[row.Label][predicted]++
	}
	eval.Accuracy = 100 * float64(eval.Correct) / float64(eval.Total)
	eval.Labels, eval.PerLabel = labelMetrics(test, eval.Predictions)

	return eval, nil
}

func labelMetrics(test []Row, predictions []string) ([]string, []LabelMetrics) {
	labels := labelsOf(test)
	for _, p := range predictions {
		found := false
		for _, l := range labels {
			if l == p {
				found = true
				break
			}
		}
		if !found {
			labels = append(labels, p)
		}
	}

	metrics := make([]LabelMetrics, 0, len(labels))
	for _, label := range labels {
		var support, correct, predicted int
		for i, row := range test {
			if row.Label == label {
				support++
				if predictions[i] == label {
					correct++
				}
			}
			if predictions[i] == label {
				predicted++
			}
		}
		m := LabelMetrics{Label: label, Support: support, Correct: correct}
		if predicted > 0 {
			m.Precision = float64(correct) / float64(predicted)
		}
		if support > 0 {
			m.Recall = float64(correct) / float64(support)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		metrics = append(metrics, m)
	}
	return labels, metrics
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithStandardization z-scores every feature column using the training
// rows' mean and standard deviation before distances are computed.
func WithStandardization() Option {
	return func(c *Classifier) { c.standardize = true }
}

// Classifier binds a dataset and k. It is safe for concurrent use; Reload
// swaps the dataset atomically for all readers.
type Classifier struct {
	mu          sync.RWMutex
	dataset     Dataset
	rows        []Row // dataset rows, standardized when enabled
	k           int
	standardize bool
	scaler      *FeatureScaler
}

// NewClassifier validates k against the dataset and builds a classifier.
func NewClassifier(dataset Dataset, k int, opts ...Option) (*Classifier, error) {
	c := &Classifier{}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.install(dataset, k); err != nil {
		return nil, err
	}
	return c, nil
}

// NewClassifierFromFile loads the dataset at path and builds a classifier.
func NewClassifierFromFile(path string, k int, opts ...Option) (*Classifier, error) {
	dataset, err := LoadDataset(path)
	if err != nil {
		return nil, err
	}
	c, err := NewClassifier(dataset, k, opts...)
	if err != nil {
		return nil, err
	}

	logger := utils.GetLogger()
	logger.Info("classifier loaded",
		"path", path,
		"rows", len(dataset.Rows),
		"labels", len(dataset.Labels()),
		"k", k,
		"standardized", c.standardize)

	return c, nil
}

func (c *Classifier) install(dataset Dataset, k int) error {
	if err := checkTrain(dataset.Rows, k); err != nil {
		return err
	}

	rows := dataset.Rows
	var scaler *FeatureScaler
	if c.standardize {
		var err error
		scaler, err = NewFeatureScaler(dataset.Rows)
		if err != nil {
			return fmt.Errorf("failed to build feature scaler: %w", err)
		}
		rows = make([]Row, len(dataset.Rows))
		for i, row := range dataset.Rows {
			rows[i] = Row{Features: scaler.Transform(row.Features), Label: row.Label}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataset = dataset
	c.rows = rows
	c.k = k
	c.scaler = scaler
	return nil
}

// Reload replaces the dataset, keeping k and the standardization setting.
// The new dataset must carry the same feature columns in the same order,
// since live sessions project their statistics onto them.
func (c *Classifier) Reload(dataset Dataset) error {
	if current := c.Columns(); !slices.Equal(current, dataset.Columns) {
		return fmt.Errorf("reload with columns %v, classifier has %v: %w",
			dataset.Columns, current, ErrColumnMismatch)
	}
	return c.install(dataset, c.K())
}

func (c *Classifier) snapshot() ([]Row, int, *FeatureScaler) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rows, c.k, c.scaler
}

// K returns the neighbor count.
func (c *Classifier) K() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k
}

// Columns returns the dataset's feature column names.
func (c *Classifier) Columns() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.dataset.Columns...)
}

// Dataset returns the unscaled dataset the classifier was built from.
func (c *Classifier) Dataset() Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dataset
}

// Predict classifies one feature vector.
func (c *Classifier) Predict(features []float64) (Prediction, error) {
	rows, k, scaler := c.snapshot()
	if err := checkTrain(rows, k); err != nil {
		return Prediction{}, err
	}
	if err := checkWidth(rows, features); err != nil {
		return Prediction{}, err
	}
	if scaler != nil {
		features = scaler.Transform(features)
	}
	return classify(rows, features, k), nil
}

// PredictBatch classifies several feature vectors.
func (c *Classifier) PredictBatch(queries [][]float64) ([]Prediction, error) {
	predictions := make([]Prediction, len(queries))
	for i, query := range queries {
		p, err := c.Predict(query)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		predictions[i] = p
	}
	return predictions, nil
}

// Evaluate scores test rows against the classifier's dataset.
func (c *Classifier) Evaluate(test []Row) (Evaluation, error) {
	rows, k, scaler := c.snapshot()
	if scaler != nil {
		scaled := make([]Row, len(test))
		for i, row := range test {
			scaled[i] = Row{Features: scaler.Transform(row.Features), Label: row.Label}
		}
		test = scaled
	}
	return Evaluate(test, rows, k)
}

// Stats returns summary metadata about the loaded dataset.
func (c *Classifier) Stats() ModelStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[string]int)
	for _, row := range c.dataset.Rows {
		counts[row.Label]++
	}

	labels := make([]ModelLabelStat, 0, len(counts))
	for label, n := range counts {
		labels = append(labels, ModelLabelStat{Label: label, Rows: n})
	}
	// keep labels sorted for deterministic responses
	sort.Slice(labels, func(i, j int) bool { return labels[i].Label < labels[j].Label })

	return ModelStats{
		RowCount:     len(c.dataset.Rows),
		LabelCount:   len(counts),
		K:            c.k,
		Columns:      append([]string(nil), c.dataset.Columns...),
		Standardized: c.standardize,
		Labels:       labels,
		SourcePath:   c.dataset.SourcePath,
	}
}
