// Package analytics derives read-only statistics from the prediction history.
package analytics

import (
	"gonum.org/v1/gonum/stat"

	"churnguard/customer"
)

// Classes are the prediction labels reported by every view, in order.
var Classes = []int{0, 1}

// Summary is the aggregate rendered by the dashboard and churnctl stats.
type Summary struct {
	Total      int              `json:"total"`
	Counts     map[int]int      `json:"counts"`
	MeanTenure map[int]*float64 `json:"mean_tenure"`
	ChurnRate  *float64         `json:"churn_rate"`
}

// ClassCounts counts records per predicted label. Both labels are always
// present. Records without a valid prediction are skipped.
func ClassCounts(records []customer.Record) map[int]int {
	counts := make(map[int]int, len(Classes))
	for _, c := range Classes {
		counts[c] = 0
	}
	for _, r := range records {
		if label, ok := classOf(r); ok {
			counts[label]++
		}
	}
	return counts
}

// MeanTenureByClass averages tenure per predicted label; a class with no
// records maps to nil.
func MeanTenureByClass(records []customer.Record) map[int]*float64 {
	tenures := make(map[int][]float64, len(Classes))
	for _, r := range records {
		if label, ok := classOf(r); ok {
			tenures[label] = append(tenures[label], float64(r.Tenure))
		}
	}

	means := make(map[int]*float64, len(Classes))
	for _, c := range Classes {
		xs := tenures[c]
		if len(xs) == 0 {
			means[c] = nil
			continue
		}
		m := stat.Mean(xs, nil)
		means[c] = &m
	}
	return means
}

func Summarize(records []customer.Record) Summary {
	counts := ClassCounts(records)
	s := Summary{
		Counts:     counts,
		MeanTenure: MeanTenureByClass(records),
	}
	for _, c := range Classes {
		s.Total += counts[c]
	}
	if s.Total > 0 {
		rate := float64(counts[1]) / float64(s.Total)
		s.ChurnRate = &rate
	}
	return s
}

func classOf(r customer.Record) (int, bool) {
	label, ok := r.Label()
	if !ok || (label != 0 && label != 1) {
		return 0, false
	}
	return label, true
}
