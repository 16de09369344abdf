package knn

// Row is one labelled sample of the cue dataset.
type Row struct {
	Features []float64 `json:"features"`
	Label    string    `json:"label"`
}

// Dataset is a parsed dataset file: the feature column names from the header
// and the rows in file order. It is passed by value and never mutated by the
// classifier.
type Dataset struct {
	Columns    []string `json:"columns"`
	LabelName  string   `json:"labelName"`
	Rows       []Row    `json:"rows"`
	SourcePath string   `json:"sourcePath,omitempty"`
}

// Width returns the number of feature columns.
func (d Dataset) Width() int { return len(d.Columns) }

// Labels returns the distinct labels in first-seen order.
func (d Dataset) Labels() []string {
	return labelsOf(d.Rows)
}

// Neighbor is a training row together with its distance to a query.
type Neighbor struct {
	Index    int     `json:"index"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// Vote is a label's tally among the k nearest neighbors.
type Vote struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Prediction is the outcome of classifying one query.
type Prediction struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Votes      []Vote     `json:"votes"`
	Neighbors  []Neighbor `json:"neighbors"`
}

// LabelMetrics are per-label precision/recall figures from an evaluation.
type LabelMetrics struct {
	Label     string  `json:"label"`
	Support   int     `json:"support"`
	Correct   int     `json:"correct"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Evaluation summarises a test-set run.
type Evaluation struct {
	K           int                       `json:"k"`
	Total       int                       `json:"total"`
	Correct     int                       `json:"correct"`
	Accuracy    float64                   `json:"accuracy"` // percent
	Predictions []string                  `json:"predictions"`
	Labels      []string                  `json:"labels"`
	PerLabel    []LabelMetrics            `json:"perLabel"`
	Confusion   map[string]map[string]int `json:"confusion"` // actual -> predicted -> count
}

// ModelStats exposes metadata about the loaded dataset.
type ModelStats struct {
	RowCount     int              `json:"rowCount"`
	LabelCount   int              `json:"labelCount"`
	K            int              `json:"k"`
	Columns      []string         `json:"columns"`
	Standardized bool             `json:"standardized"`
	Labels       []ModelLabelStat `json:"labels"`
	SourcePath   string           `json:"sourcePath,omitempty"`
}

// ModelLabelStat summarises row density per label.
type ModelLabelStat struct {
	Label string `json:"label"`
	Rows  int    `json:"rows"`
}

func labelsOf(rows []Row) []string {
	seen := make(map[string]struct{})
	var labels []string
	for _, row := range rows {
		if _, ok := seen[row.Label]; ok {
			continue
		}
		seen[row.Label] = struct{}{}
		labels = append(labels, row.Label)
	}
	return labels
}
