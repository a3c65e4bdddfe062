package rfq

import (
	"context"

	"rfqtrack.org/internal/auth"
)

// Service defines the RFQ operations exposed to the HTTP layer. The
// Postgres store is the production implementation; InMemory backs tests.
type Service interface {
	// List returns one page of RFQs visible to the viewer, most recent
	// first, with the echoed pagination window and matching total.
	List(ctx context.Context, v Viewer, f ListFilter) (ListResult, error)

	// Get returns the full detail of one RFQ: ErrNotFound when absent,
	// ErrAccessDenied when outside the viewer's scope.
	Get(ctx context.Context, v Viewer, id int64) (Detail, error)

	// Create persists a new RFQ and its initial audit row as one unit of
	// work; either both become visible or neither does.
	Create(ctx context.Context, v Viewer, in NewRFQInput) (RFQ, error)

	// Update applies a partial update, enforcing the status workflow rules
	// and appending an audit row when the status changes. The outcome
	// reports the transition so callers can announce it.
	Update(ctx context.Context, v Viewer, id int64, in UpdateInput) (UpdateOutcome, error)

	// Delete removes an RFQ. Admin only.
	Delete(ctx context.Context, v Viewer, id int64) error

	// Dashboard computes the aggregate stats and chart series.
	Dashboard(ctx context.Context) (Stats, error)

	// UsersByRole lists active users with the given role, for dropdowns.
	UsersByRole(ctx context.Context, role auth.Role) ([]UserRef, error)

	// MonthlyPerformance buckets the viewer's RFQs by month of receipt for
	// one calendar year.
	MonthlyPerformance(ctx context.Context, v Viewer, year int) ([]MonthlyBucket, error)
}
