package pg

import (
	"context"
	"fmt"

	"rfqtrack.org/internal/rfq"
)

// Dashboard runs five independent aggregate queries. The chart series are
// built row by row, so labels and values can never drift out of step.
func (s *Store) Dashboard(ctx context.Context) (rfq.Stats, error) {
	var stats rfq.Stats

	if err := s.db.QueryRowContext(ctx,
		`select count(*) from rfqs`,
	).Scan(&stats.TotalRFQs); err != nil {
		return rfq.Stats{}, fmt.Errorf("dashboard total: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`select count(*) from rfqs where status in ('Enquiry', 'Under Review')`,
	).Scan(&stats.PendingQuotes); err != nil {
		return rfq.Stats{}, fmt.Errorf("dashboard pending: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		select count(*) from rfqs
		where status = 'Won'
		  and date_trunc('month', updated_at) = date_trunc('month', now())
	`).Scan(&stats.WonThisMonth); err != nil {
		return rfq.Stats{}, fmt.Errorf("dashboard won this month: %w", err)
	}

	dist, err := s.db.QueryContext(ctx, `
		select status, count(*) as count
		from rfqs
		group by status
		order by count desc, status
	`)
	if err != nil {
		return rfq.Stats{}, fmt.Errorf("dashboard status distribution: %w", err)
	}
	defer dist.Close()
	for dist.Next() {
		var label string
		var value int64
		if err := dist.Scan(&label, &value); err != nil {
			return rfq.Stats{}, err
		}
		stats.StatusDist.Labels = append(stats.StatusDist.Labels, label)
		stats.StatusDist.Values = append(stats.StatusDist.Values, value)
	}
	if err := dist.Err(); err != nil {
		return rfq.Stats{}, err
	}

	trend, err := s.db.QueryContext(ctx, `
		select to_char(date_trunc('month', rfq_received_date), 'Mon') as month,
		       count(*) as count
		from rfqs
		where rfq_received_date > current_date - interval '6 months'
		group by date_trunc('month', rfq_received_date)
		order by date_trunc('month', rfq_received_date)
	`)
	if err != nil {
		return rfq.Stats{}, fmt.Errorf("dashboard trend: %w", err)
	}
	defer trend.Close()
	for trend.Next() {
		var label string
		var value int64
		if err := trend.Scan(&label, &value); err != nil {
			return rfq.Stats{}, err
		}
		stats.Trend.Labels = append(stats.Trend.Labels, label)
		stats.Trend.Values = append(stats.Trend.Values, value)
	}
	if err := trend.Err(); err != nil {
		return rfq.Stats{}, err
	}

	return stats, nil
}

// MonthlyPerformance runs the role-scoped per-month report for one year.
func (s *Store) MonthlyPerformance(ctx context.Context, v rfq.Viewer, year int) ([]rfq.MonthlyBucket, error) {
	query, args := rfq.BuildMonthlyPerformance(v, year)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monthly performance: %w", err)
	}
	defer rows.Close()

	var out []rfq.MonthlyBucket
	for rows.Next() {
		var b rfq.MonthlyBucket
		if err := rows.Scan(&b.Month, &b.TotalRFQs, &b.Won, &b.Lost,
			&b.QuotationSent, &b.TotalEstimatedValue); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
