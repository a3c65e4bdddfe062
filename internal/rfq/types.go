package rfq

import (
	"errors"
	"fmt"
	"time"

	"rfqtrack.org/internal/auth"
)

// Status is the RFQ lifecycle state. Transitions append a status_audit_log
// row; creation logs the initial Enquiry with a NULL old status.
type Status string

const (
	StatusEnquiry       Status = "Enquiry"
	StatusUnderReview   Status = "Under Review"
	StatusQuotationSent Status = "Quotation Sent"
	StatusWon           Status = "Won"
	StatusLost          Status = "Lost"
	StatusOnHold        Status = "On Hold"
)

// Statuses lists every lifecycle state, for form dropdowns and validation.
var Statuses = []Status{
	StatusEnquiry, StatusUnderReview, StatusQuotationSent,
	StatusWon, StatusLost, StatusOnHold,
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Priorities lists the accepted priority values.
var Priorities = []string{"Low", "Medium", "High", "Urgent"}

const (
	DefaultPriority = "Medium"
	DefaultCurrency = "INR"
)

// RFQ is a request-for-quotation record. Optional columns are pointers so a
// NULL survives the round trip through the database unchanged.
type RFQ struct {
	ID                    int64
	RFQNumber             string
	CustomerName          string
	CustomerContactPerson *string
	Email                 *string
	Phone                 *string
	CompanyName           *string
	ReceivedDate          time.Time
	DueDate               *time.Time
	ProductProjectName    *string
	Category              *string
	Source                *string
	AssignedEngineerID    *int64
	AssignedSalesPersonID *int64
	Priority              string
	EstimatedValue        *float64
	Currency              string
	ExpectedOrderDate     *time.Time
	Status                Status
	ReasonForLostOnHold   *string
	RemarksNotes          *string
	CreatedBy             int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Row is an RFQ enriched with the joined display names and the quotation
// count, as returned by the listing query.
type Row struct {
	RFQ
	AssignedEngineerName    *string
	AssignedSalesPersonName *string
	CreatedByName           *string
	QuotationCount          int64
}

// Quotation is the subset of a quotation used by the detail view.
type Quotation struct {
	ID             int64
	RFQID          int64
	QuotedAmount   *float64
	ApprovalStatus string
	SentDate       *time.Time
	CreatedBy      int64
	CreatedByName  *string
	CreatedAt      time.Time
}

// StatusChange is one append-only audit row. OldStatus is nil for the entry
// written at creation.
type StatusChange struct {
	ID            int64
	RFQID         int64
	OldStatus     *Status
	NewStatus     Status
	ChangedBy     int64
	ChangedByName *string
	ChangeReason  *string
	ChangedAt     time.Time
}

// UpdateOutcome is the applied update plus the status transition it caused,
// if any. OldStatus is meaningful only when StatusChanged is true.
type UpdateOutcome struct {
	RFQ
	OldStatus     Status
	StatusChanged bool
}

// Detail is the single-RFQ view: the row plus its quotations and history.
type Detail struct {
	Row
	Quotations    []Quotation
	StatusHistory []StatusChange
}

// UserRef backs the engineer/salesperson form dropdowns.
type UserRef struct {
	ID       int64
	FullName string
	Email    string
}

// Viewer is the caller's verified identity, derived from the token and never
// from request parameters.
type Viewer struct {
	UserID int64
	Role   auth.Role
}

// Pagination echoes the window applied to a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// ListResult is one page of role-scoped, filtered RFQs.
type ListResult struct {
	Rows       []Row
	Pagination Pagination
}

// ChartSeries carries parallel label/value sequences for a chart. Labels and
// Values are always the same length, index-aligned.
type ChartSeries struct {
	Labels []string `json:"labels"`
	Values []int64  `json:"values"`
}

// Stats is the dashboard aggregate.
type Stats struct {
	TotalRFQs     int64       `json:"total_rfqs"`
	PendingQuotes int64       `json:"pending_quotes"`
	WonThisMonth  int64       `json:"won_month"`
	StatusDist    ChartSeries `json:"status"`
	Trend         ChartSeries `json:"trend"`
}

// MonthlyBucket is one row of the monthly performance report.
type MonthlyBucket struct {
	Month               string   `json:"month"`
	TotalRFQs           int64    `json:"total_rfqs"`
	Won                 int64    `json:"won"`
	Lost                int64    `json:"lost"`
	QuotationSent       int64    `json:"quotation_sent"`
	TotalEstimatedValue *float64 `json:"total_estimated_value"`
}

var (
	ErrNotFound     = errors.New("rfq: not found")
	ErrAccessDenied = errors.New("rfq: access denied")
)

// ValidationError reports malformed or missing input. It maps to a 4xx at
// the HTTP boundary, never a crash.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// RuleError reports a status workflow violation.
type RuleError struct {
	Msg string
}

func (e *RuleError) Error() string { return e.Msg }
