package rfq

import (
	"strconv"
	"strings"
)

// ListFilter carries the optional listing filters plus the pagination
// window. Role scoping is not a filter; it comes from the Viewer.
type ListFilter struct {
	Status   string
	Priority string
	Search   string
	Page     int
	Limit    int
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Normalize clamps the pagination window so an out-of-range page or limit
// can never produce a malformed query.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > maxLimit {
		f.Limit = defaultLimit
	}
	return f
}

// Offset is the row offset implied by the normalized window.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// whereBuilder accumulates predicates and assigns positional placeholders
// mechanically from the running argument count, so no call site ever tracks
// an index by hand.
type whereBuilder struct {
	conds []string
	args  []any
}

// bind appends a value and returns its placeholder.
func (b *whereBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// Compare adds `column op value` as an AND-joined predicate.
func (b *whereBuilder) Compare(column, op string, value any) {
	b.conds = append(b.conds, column+" "+op+" "+b.bind(value))
}

// CompareAny adds an OR group applying the same operator and value to every
// column. Each branch binds its own placeholder; positional-parameter reuse
// is driver-specific and not relied on.
func (b *whereBuilder) CompareAny(columns []string, op string, value any) {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, col+" "+op+" "+b.bind(value))
	}
	b.conds = append(b.conds, "("+strings.Join(parts, " OR ")+")")
}

// Clause renders the WHERE clause, or an empty string when unconstrained.
func (b *whereBuilder) Clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// searchColumns are the four text columns covered by the free-text filter.
var searchColumns = []string{
	"r.rfq_number",
	"r.customer_name",
	"r.product_project_name",
	"r.company_name",
}

// applyScope adds the mandatory role predicate. It runs before any optional
// filter and cannot be bypassed by request parameters: engineers see RFQs
// assigned to them, sales see RFQs they are assigned to or created, admins
// see everything.
func applyScope(b *whereBuilder, v Viewer) {
	switch v.Role {
	case "engineer":
		b.Compare("r.assigned_engineer_id", "=", v.UserID)
	case "sales":
		b.CompareAny([]string{"r.assigned_sales_person_id", "r.created_by"}, "=", v.UserID)
	}
}

// applyFilters adds the optional predicates from the request.
func applyFilters(b *whereBuilder, f ListFilter) {
	if f.Status != "" {
		b.Compare("r.status", "=", f.Status)
	}
	if f.Priority != "" {
		b.Compare("r.priority", "=", f.Priority)
	}
	if f.Search != "" {
		b.CompareAny(searchColumns, "ILIKE", "%"+f.Search+"%")
	}
}

const listSelect = `SELECT
	r.id, r.rfq_number, r.customer_name, r.customer_contact_person, r.email, r.phone,
	r.company_name, r.rfq_received_date, r.rfq_due_date, r.product_project_name,
	r.rfq_category, r.rfq_source, r.assigned_engineer_id, r.assigned_sales_person_id,
	r.priority, r.estimated_project_value, r.currency, r.expected_order_date,
	r.status, r.reason_for_lost_on_hold, r.remarks_notes, r.created_by, r.created_at, r.updated_at,
	u1.full_name AS assigned_engineer_name,
	u2.full_name AS assigned_sales_person_name,
	u3.full_name AS created_by_name,
	COUNT(q.id) AS quotation_count
FROM rfqs r
LEFT JOIN users u1 ON r.assigned_engineer_id = u1.id
LEFT JOIN users u2 ON r.assigned_sales_person_id = u2.id
LEFT JOIN users u3 ON r.created_by = u3.id
LEFT JOIN quotations q ON r.id = q.rfq_id`

const listTail = `
GROUP BY r.id, u1.full_name, u2.full_name, u3.full_name
ORDER BY r.created_at DESC, r.id DESC`

// BuildList assembles the role-scoped, filtered, paginated listing query.
// The filter must already be normalized.
func BuildList(v Viewer, f ListFilter) (string, []any) {
	b := &whereBuilder{}
	applyScope(b, v)
	applyFilters(b, f)

	query := listSelect + b.Clause() + listTail
	query += "\nLIMIT " + b.bind(f.Limit) + " OFFSET " + b.bind(f.Offset())
	return query, b.args
}

// BuildCount assembles the matching total-row count for the same scope and
// filters. DISTINCT guards against the quotation join fanning out rows.
func BuildCount(v Viewer, f ListFilter) (string, []any) {
	b := &whereBuilder{}
	applyScope(b, v)
	applyFilters(b, f)
	return "SELECT COUNT(DISTINCT r.id) FROM rfqs r" + b.Clause(), b.args
}

const monthlySelect = `SELECT
	to_char(r.rfq_received_date, 'YYYY-MM') AS month,
	COUNT(*) AS total_rfqs,
	COUNT(*) FILTER (WHERE r.status = 'Won') AS won,
	COUNT(*) FILTER (WHERE r.status = 'Lost') AS lost,
	COUNT(*) FILTER (WHERE r.status = 'Quotation Sent') AS quotation_sent,
	SUM(r.estimated_project_value) AS total_estimated_value
FROM rfqs r`

const monthlyTail = `
GROUP BY to_char(r.rfq_received_date, 'YYYY-MM')
ORDER BY month`

// BuildMonthlyPerformance assembles the per-month report for one year,
// scoped by the same role predicate as the listing.
func BuildMonthlyPerformance(v Viewer, year int) (string, []any) {
	b := &whereBuilder{}
	applyScope(b, v)
	b.Compare("EXTRACT(YEAR FROM r.rfq_received_date)", "=", year)
	return monthlySelect + b.Clause() + monthlyTail, b.args
}
