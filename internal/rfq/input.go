package rfq

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"rfqtrack.org/internal/auth"
)

const dateLayout = "2006-01-02"

// NewRFQInput is the typed, validated form of the creation request.
type NewRFQInput struct {
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
	RemarksNotes          *string
}

// ParseNewRFQ coerces raw form fields into a NewRFQInput. Empty optional
// fields become NULLs, not errors; malformed values reject the whole
// request. A sales caller without an explicit salesperson becomes the
// assigned salesperson.
func ParseNewRFQ(form url.Values, v Viewer) (NewRFQInput, error) {
	in := NewRFQInput{
		CustomerName:          strings.TrimSpace(form.Get("customer_name")),
		CustomerContactPerson: optText(form.Get("customer_contact_person")),
		Email:                 optText(form.Get("email")),
		Phone:                 optText(form.Get("phone")),
		CompanyName:           optText(form.Get("company_name")),
		ProductProjectName:    optText(form.Get("product_project_name")),
		Category:              optText(form.Get("rfq_category")),
		Source:                optText(form.Get("rfq_source")),
		Priority:              strings.TrimSpace(form.Get("priority")),
		Currency:              strings.TrimSpace(form.Get("currency")),
		RemarksNotes:          optText(form.Get("remarks_notes")),
	}

	if in.CustomerName == "" {
		return NewRFQInput{}, validationf("customer_name is required")
	}

	received := strings.TrimSpace(form.Get("rfq_received_date"))
	if received == "" {
		return NewRFQInput{}, validationf("rfq_received_date is required")
	}
	receivedDate, err := time.Parse(dateLayout, received)
	if err != nil {
		return NewRFQInput{}, validationf("rfq_received_date must be YYYY-MM-DD")
	}
	in.ReceivedDate = receivedDate

	if in.DueDate, err = optDate(form.Get("rfq_due_date"), "rfq_due_date"); err != nil {
		return NewRFQInput{}, err
	}
	if in.ExpectedOrderDate, err = optDate(form.Get("expected_order_date"), "expected_order_date"); err != nil {
		return NewRFQInput{}, err
	}
	if in.AssignedEngineerID, err = optInt(form.Get("assigned_engineer_id"), "assigned_engineer_id"); err != nil {
		return NewRFQInput{}, err
	}
	if in.AssignedSalesPersonID, err = optInt(form.Get("assigned_sales_person_id"), "assigned_sales_person_id"); err != nil {
		return NewRFQInput{}, err
	}
	if in.EstimatedValue, err = optDecimal(form.Get("estimated_project_value"), "estimated_project_value"); err != nil {
		return NewRFQInput{}, err
	}

	if in.Priority == "" {
		in.Priority = DefaultPriority
	}
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}
	if in.AssignedSalesPersonID == nil && v.Role == auth.RoleSales {
		uid := v.UserID
		in.AssignedSalesPersonID = &uid
	}

	return in, nil
}

// UpdateInput carries the fields of a partial update; nil means untouched.
type UpdateInput struct {
	CustomerName          *string
	CustomerContactPerson *string
	Email                 *string
	Phone                 *string
	CompanyName           *string
	ReceivedDate          *time.Time
	DueDate               *time.Time
	ProductProjectName    *string
	Category              *string
	Source                *string
	AssignedEngineerID    *int64
	AssignedSalesPersonID *int64
	Priority              *string
	EstimatedValue        *float64
	Currency              *string
	ExpectedOrderDate     *time.Time
	Status                *Status
	ReasonForLostOnHold   *string
	RemarksNotes          *string
}

// Empty reports whether the update touches nothing.
func (u UpdateInput) Empty() bool {
	return u == (UpdateInput{})
}

// Validate rejects structurally invalid update fields before any query runs.
func (u UpdateInput) Validate() error {
	if u.CustomerName != nil && strings.TrimSpace(*u.CustomerName) == "" {
		return validationf("customer_name cannot be empty")
	}
	if u.Status != nil && !u.Status.Valid() {
		return validationf("unknown status %q", string(*u.Status))
	}
	return nil
}

// CheckStatusRule enforces the workflow preconditions of a transition. The
// caller supplies the quotation counts for the RFQ being moved.
func CheckStatusRule(newStatus Status, reason *string, quotations, approvedQuotations int64) error {
	switch newStatus {
	case StatusQuotationSent:
		if quotations == 0 {
			return &RuleError{Msg: "Cannot set status to Quotation Sent without creating a quotation"}
		}
	case StatusWon:
		if approvedQuotations == 0 {
			return &RuleError{Msg: "Cannot mark RFQ as Won without an approved quotation"}
		}
	case StatusLost, StatusOnHold:
		if reason == nil || strings.TrimSpace(*reason) == "" {
			return &RuleError{Msg: "Reason is required when status is " + string(newStatus)}
		}
	}
	return nil
}

// CanView applies the same scoping rule as the listing predicate to a single
// record.
func CanView(v Viewer, r RFQ) bool {
	switch v.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleEngineer:
		return r.AssignedEngineerID != nil && *r.AssignedEngineerID == v.UserID
	case auth.RoleSales:
		if r.AssignedSalesPersonID != nil && *r.AssignedSalesPersonID == v.UserID {
			return true
		}
		return r.CreatedBy == v.UserID
	}
	return false
}

func optText(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return &raw
}

func optDate(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, validationf("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

func optInt(raw, field string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, validationf("%s must be an integer", field)
	}
	return &n, nil
}

func optDecimal(raw, field string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, validationf("%s must be a number", field)
	}
	return &f, nil
}
