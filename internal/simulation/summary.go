package simulation

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// Summary aggregates a batch.
type Summary struct {
	Total   int
	OK      int
	Failed  int
	Revenue decimal.Decimal
	// BestID is the successful scenario with the highest revenue, ties going
	// to the lower ID. Empty when nothing succeeded.
	BestID      string
	BestRevenue decimal.Decimal
}

// Summarize computes counts and revenue over results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if !r.OK {
			s.Failed++
			continue
		}
		s.OK++
		rev := r.Revenue()
		s.Revenue = s.Revenue.Add(rev)
		if s.BestID == "" || rev.GreaterThan(s.BestRevenue) ||
			(rev.Equal(s.BestRevenue) && r.ID < s.BestID) {
			s.BestID = r.ID
			s.BestRevenue = rev
		}
	}
	return s
}

// SortResults orders results by ID in place.
func SortResults(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
