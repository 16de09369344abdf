package knn

import (
	"fmt"
	"io"
	"math"
)

// FeatureScaleAnalysis describes the per-column spread of a dataset and the
// per-label column means.
type FeatureScaleAnalysis struct {
	FeatureNames []string             `json:"featureNames"`
	MinValues    []float64            `json:"min"`
	MaxValues    []float64            `json:"max"`
	MeanValues   []float64            `json:"mean"`
	StdValues    []float64            `json:"std"`
	LabelMeans   map[string][]float64 `json:"labelMeans"`
	LabelOrder   []string             `json:"labelOrder"`
}

// AnalyzeFeatures examines the dataset's columns.
func AnalyzeFeatures(ds Dataset) FeatureScaleAnalysis {
	featureCount := ds.Width()
	analysis := FeatureScaleAnalysis{
		FeatureNames: append([]string(nil), ds.Columns...),
		MinValues:    make([]float64, featureCount),
		MaxValues:    make([]float64, featureCount),
		MeanValues:   make([]float64, featureCount),
		StdValues:    make([]float64, featureCount),
		LabelMeans:   make(map[string][]float64),
		LabelOrder:   ds.Labels(),
	}
	if len(ds.Rows) == 0 {
		return analysis
	}

	for i := range analysis.MinValues {
		analysis.MinValues[i] = math.Inf(1)
		analysis.MaxValues[i] = math.Inf(-1)
	}

	labelCounts := make(map[string]int)
	for _, row := range ds.Rows {
		sums, ok := analysis.LabelMeans[row.Label]
		if !ok {
			sums = make([]float64, featureCount)
			analysis.LabelMeans[row.Label] = sums
		}
		labelCounts[row.Label]++
		for i, val := range row.Features {
			analysis.MinValues[i] = math.Min(analysis.MinValues[i], val)
			analysis.MaxValues[i] = math.Max(analysis.MaxValues[i], val)
			analysis.MeanValues[i] += val
			sums[i] += val
		}
	}

	n := float64(len(ds.Rows))
	for i := range analysis.MeanValues {
		analysis.MeanValues[i] /= n
	}
	for label, sums := range analysis.LabelMeans {
		for i := range sums {
			sums[i] /= float64(labelCounts[label])
		}
	}

	for _, row := range ds.Rows {
		for i, val := range row.Features {
			diff := val - analysis.MeanValues[i]
			analysis.StdValues[i] += diff * diff
		}
	}
	for i := range analysis.StdValues {
		analysis.StdValues[i] = math.Sqrt(analysis.StdValues[i] / n)
	}

	return analysis
}

// PrintReport writes a table of column scales and label means.
func (f *FeatureScaleAnalysis) PrintReport(w io.Writer) {
	fmt.Fprintln(w, "\n=== Feature Scale Analysis ===")
	fmt.Fprintf(w, "%-22s %12s %12s %12s %12s %12s\n", "Feature", "Min", "Max", "Mean", "Std", "Range")
	fmt.Fprintln(w, "--------------------------------------------------------------------------------")

	for i, name := range f.FeatureNames {
		if i >= len(f.MinValues) {
			break
		}
		rangeVal := f.MaxValues[i] - f.MinValues[i]
		fmt.Fprintf(w, "%-22s %12.4f %12.4f %12.4f %12.4f %12.4f\n",
			name, f.MinValues[i], f.MaxValues[i], f.MeanValues[i], f.StdValues[i], rangeVal)
	}

	if len(f.LabelOrder) == 0 {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w, "\n=== Per-label means ===")
	for _, label := range f.LabelOrder {
		fmt.Fprintf(w, "%-12s", label)
		for _, v := range f.LabelMeans[label] {
			fmt.Fprintf(w, " %10.4f", v)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

// CheckScaleIssues flags columns likely to dominate raw Euclidean distances.
func (f *FeatureScaleAnalysis) CheckScaleIssues() []string {
	issues := []string{}

	var ranges []float64
	minRange := math.Inf(1)
	for i := range f.FeatureNames {
		if i >= len(f.MinValues) {
			break
		}
		r := f.MaxValues[i] - f.MinValues[i]
		ranges = append(ranges, r)
		if r > 0 && r < minRange {
			minRange = r
		}
	}

	for i, r := range ranges {
		if !math.IsInf(minRange, 1) && r/minRange > 10 {
			issues = append(issues, fmt.Sprintf(
				"Feature '%s' spans %.1fx the range of the narrowest feature and will dominate distances; consider standardization",
				f.FeatureNames[i], r/minRange))
		}
		if r == 0 {
			issues = append(issues, fmt.Sprintf("Feature '%s' is constant and carries no signal", f.FeatureNames[i]))
		}
	}

	for i, name := range f.FeatureNames {
		if i >= len(f.MeanValues) {
			break
		}
		if math.Abs(f.MeanValues[i]) > 1e-9 {
			coeffVar := f.StdValues[i] / math.Abs(f.MeanValues[i])
			if coeffVar > 2.0 {
				issues = append(issues, fmt.Sprintf(
					"Feature '%s' has high coefficient of variation (%.2f), indicating high variability",
					name, coeffVar))
			}
		}
	}

	return issues
}
