package memory

import "context"

// DefaultSummaryWindow is the number of recent records Summarize inspects
// when no positive limit is given.
const DefaultSummaryWindow = 20

// Summary describes the most recent slice of a store.
type Summary struct {
	// Total is the number of records inspected.
	Total int `json:"total"`

	// ByKind counts the inspected records per kind.
	ByKind map[Kind]int `json:"by_kind"`

	// Latest is the newest record, nil when the store is empty.
	Latest *Record `json:"latest,omitempty"`
}

// Summarize inspects the newest limit records of store.
func Summarize(ctx context.Context, store Store, limit int) (*Summary, error) {
	if limit <= 0 {
		limit = DefaultSummaryWindow
	}

	recent, err := store.Recent(ctx, limit, "")
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Total:  len(recent),
		ByKind: make(map[Kind]int),
	}
	for _, r := range recent {
		summary.ByKind[r.Kind]++
	}
	if len(recent) > 0 {
		summary.Latest = recent[0]
	}
	return summary, nil
}
