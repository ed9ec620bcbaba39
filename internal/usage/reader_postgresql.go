package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Summary implements Reader.
func (s *PostgreSQLStore) Summary(ctx context.Context, q Query) ([]ProviderSummary, error) {
	where, args := sqlTimeFilter(q,
		func(n int) string { return "$" + strconv.Itoa(n) },
		func(t time.Time) any { return t.UTC() },
	)

	rows, err := s.pool.Query(ctx, summarySelect+where+" GROUP BY provider ORDER BY provider", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}
	defer rows.Close()

	result := make([]ProviderSummary, 0)
	for rows.Next() {
		var p ProviderSummary
		if err := rows.Scan(&p.Provider, &p.Requests, &p.Errors, &p.Streams, &p.InputTokens, &p.OutputTokens, &p.TotalTokens); err != nil {
			return nil, fmt.Errorf("failed to scan usage summary row: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage summary rows: %w", err)
	}
	return result, nil
}
