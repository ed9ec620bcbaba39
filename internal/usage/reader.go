package usage

import (
	"context"
	"time"
)

// Query selects ledger entries by time. Zero bounds are open.
type Query struct {
	Since time.Time // inclusive
	Until time.Time // exclusive
}

// ProviderSummary aggregates the ledger entries of one provider.
type ProviderSummary struct {
	Provider     string `json:"provider"`
	Requests     int64  `json:"requests"`
	Errors       int64  `json:"errors"`
	Streams      int64  `json:"streams"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
}

// Reader provides read access to the ledger.
type Reader interface {
	// Summary returns one row per provider ordered by provider id.
	Summary(ctx context.Context, q Query) ([]ProviderSummary, error)
}

// sqlTimeFilter builds the WHERE clause for q. placeholder renders the
// n-th bound parameter in the backend's syntax.
func sqlTimeFilter(q Query, placeholder func(n int) string, format func(time.Time) any) (string, []any) {
	var conditions []string
	var args []any
	if !q.Since.IsZero() {
		args = append(args, format(q.Since))
		conditions = append(conditions, "timestamp >= "+placeholder(len(args)))
	}
	if !q.Until.IsZero() {
		args = append(args, format(q.Until))
		conditions = append(conditions, "timestamp < "+placeholder(len(args)))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	where := " WHERE " + conditions[0]
	for _, c := range conditions[1:] {
		where += " AND " + c
	}
	return where, args
}

const summarySelect = `SELECT provider,
	COUNT(*),
	COALESCE(SUM(CASE WHEN status = 'errored' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN stream THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(input_tokens), 0),
	COALESCE(SUM(output_tokens), 0),
	COALESCE(SUM(total_tokens), 0)
	FROM usage`
