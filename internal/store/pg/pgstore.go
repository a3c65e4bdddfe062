package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"rfqtrack.org/internal/auth"
	"rfqtrack.org/internal/rfq"
)

// Store implements rfq.Service and auth.AccountFinder over PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ rfq.Service        = (*Store)(nil)
	_ auth.AccountFinder = (*Store)(nil)
)

// Open connects to PostgreSQL and tunes the connection pool. Every request
// borrows a connection from this pool and returns it on all exit paths.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle. Used by tests.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for readiness pings.
func (s *Store) DB() *sql.DB { return s.db }

// FindAccountByEmail looks up an active user for the login flow.
func (s *Store) FindAccountByEmail(ctx context.Context, email string) (auth.Account, error) {
	var acct auth.Account
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, role, full_name
		from users
		where lower(email) = lower($1) and is_active
	`, email).Scan(&acct.ID, &acct.Email, &acct.PasswordHash, &acct.Role, &acct.FullName)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, auth.ErrAccountNotFound
	}
	if err != nil {
		return auth.Account{}, err
	}
	return acct, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRow reads one listing/detail row. The column order matches both the
// listing select in the rfq package and detailSelect below.
func scanRow(sc scanner) (rfq.Row, error) {
	var row rfq.Row
	err := sc.Scan(
		&row.ID, &row.RFQNumber, &row.CustomerName, &row.CustomerContactPerson, &row.Email, &row.Phone,
		&row.CompanyName, &row.ReceivedDate, &row.DueDate, &row.ProductProjectName,
		&row.Category, &row.Source, &row.AssignedEngineerID, &row.AssignedSalesPersonID,
		&row.Priority, &row.EstimatedValue, &row.Currency, &row.ExpectedOrderDate,
		&row.Status, &row.ReasonForLostOnHold, &row.RemarksNotes, &row.CreatedBy, &row.CreatedAt, &row.UpdatedAt,
		&row.AssignedEngineerName, &row.AssignedSalesPersonName, &row.CreatedByName, &row.QuotationCount,
	)
	return row, err
}

// List runs the role-scoped listing plus its matching count.
func (s *Store) List(ctx context.Context, v rfq.Viewer, f rfq.ListFilter) (rfq.ListResult, error) {
	f = f.Normalize()

	query, args := rfq.BuildList(v, f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return rfq.ListResult{}, fmt.Errorf("list rfqs: %w", err)
	}
	defer rows.Close()

	result := rfq.ListResult{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return rfq.ListResult{}, err
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return rfq.ListResult{}, err
	}

	countQuery, countArgs := rfq.BuildCount(v, f)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return rfq.ListResult{}, fmt.Errorf("count rfqs: %w", err)
	}

	result.Pagination = rfq.Pagination{
		Page:  f.Page,
		Limit: f.Limit,
		Total: total,
		Pages: (total + int64(f.Limit) - 1) / int64(f.Limit),
	}
	return result, nil
}

const detailSelect = `select
	r.id, r.rfq_number, r.customer_name, r.customer_contact_person, r.email, r.phone,
	r.company_name, r.rfq_received_date, r.rfq_due_date, r.product_project_name,
	r.rfq_category, r.rfq_source, r.assigned_engineer_id, r.assigned_sales_person_id,
	r.priority, r.estimated_project_value, r.currency, r.expected_order_date,
	r.status, r.reason_for_lost_on_hold, r.remarks_notes, r.created_by, r.created_at, r.updated_at,
	u1.full_name as assigned_engineer_name,
	u2.full_name as assigned_sales_person_name,
	u3.full_name as created_by_name,
	(select count(*) from quotations q where q.rfq_id = r.id) as quotation_count
from rfqs r
left join users u1 on r.assigned_engineer_id = u1.id
left join users u2 on r.assigned_sales_person_id = u2.id
left join users u3 on r.created_by = u3.id
where r.id = $1`

// Get loads one RFQ with its quotations and status history. The scope check
// happens after the load so a missing record reports not-found, not denied.
func (s *Store) Get(ctx context.Context, v rfq.Viewer, id int64) (rfq.Detail, error) {
	row, err := scanRow(s.db.QueryRowContext(ctx, detailSelect, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rfq.Detail{}, rfq.ErrNotFound
	}
	if err != nil {
		return rfq.Detail{}, fmt.Errorf("get rfq: %w", err)
	}
	if !rfq.CanView(v, row.RFQ) {
		return rfq.Detail{}, rfq.ErrAccessDenied
	}

	d := rfq.Detail{Row: row}

	quotes, err := s.db.QueryContext(ctx, `
		select q.id, q.rfq_id, q.quoted_amount, q.approval_status, q.quotation_sent_date,
		       q.created_by, u.full_name as created_by_name, q.created_at
		from quotations q
		left join users u on q.created_by = u.id
		where q.rfq_id = $1
		order by q.created_at desc
	`, id)
	if err != nil {
		return rfq.Detail{}, fmt.Errorf("get quotations: %w", err)
	}
	defer quotes.Close()
	for quotes.Next() {
		var q rfq.Quotation
		if err := quotes.Scan(&q.ID, &q.RFQID, &q.QuotedAmount, &q.ApprovalStatus, &q.SentDate,
			&q.CreatedBy, &q.CreatedByName, &q.CreatedAt); err != nil {
			return rfq.Detail{}, err
		}
		d.Quotations = append(d.Quotations, q)
	}
	if err := quotes.Err(); err != nil {
		return rfq.Detail{}, err
	}

	history, err := s.db.QueryContext(ctx, `
		select sal.id, sal.rfq_id, sal.old_status, sal.new_status, sal.changed_by,
		       u.full_name as changed_by_name, sal.change_reason, sal.changed_at
		from status_audit_log sal
		left join users u on sal.changed_by = u.id
		where sal.rfq_id = $1
		order by sal.changed_at desc
	`, id)
	if err != nil {
		return rfq.Detail{}, fmt.Errorf("get status history: %w", err)
	}
	defer history.Close()
	for history.Next() {
		var c rfq.StatusChange
		if err := history.Scan(&c.ID, &c.RFQID, &c.OldStatus, &c.NewStatus, &c.ChangedBy,
			&c.ChangedByName, &c.ChangeReason, &c.ChangedAt); err != nil {
			return rfq.Detail{}, err
		}
		d.StatusHistory = append(d.StatusHistory, c)
	}
	return d, history.Err()
}

const insertRFQ = `insert into rfqs (
	rfq_number, customer_name, customer_contact_person, email, phone,
	company_name, rfq_received_date, rfq_due_date, product_project_name,
	rfq_category, rfq_source, assigned_engineer_id, assigned_sales_person_id,
	priority, estimated_project_value, currency, expected_order_date,
	status, remarks_notes, created_by
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
returning id, created_at, updated_at`

// Create inserts the RFQ and its initial audit row in one transaction; a
// failure on either side rolls back both. The RFQ number comes from the
// database-side generator, so concurrent creations cannot collide.
func (s *Store) Create(ctx context.Context, v rfq.Viewer, in rfq.NewRFQInput) (rfq.RFQ, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rfq.RFQ{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var number string
	if err := tx.QueryRowContext(ctx, `select generate_rfq_number()`).Scan(&number); err != nil {
		return rfq.RFQ{}, fmt.Errorf("generate rfq number: %w", err)
	}

	r := rfq.RFQ{
		RFQNumber:             number,
		CustomerName:          in.CustomerName,
		CustomerContactPerson: in.CustomerContactPerson,
		Email:                 in.Email,
		Phone:                 in.Phone,
		CompanyName:           in.CompanyName,
		ReceivedDate:          in.ReceivedDate,
		DueDate:               in.DueDate,
		ProductProjectName:    in.ProductProjectName,
		Category:              in.Category,
		Source:                in.Source,
		AssignedEngineerID:    in.AssignedEngineerID,
		AssignedSalesPersonID: in.AssignedSalesPersonID,
		Priority:              in.Priority,
		EstimatedValue:        in.EstimatedValue,
		Currency:              in.Currency,
		ExpectedOrderDate:     in.ExpectedOrderDate,
		Status:                rfq.StatusEnquiry,
		RemarksNotes:          in.RemarksNotes,
		CreatedBy:             v.UserID,
	}

	err = tx.QueryRowContext(ctx, insertRFQ,
		r.RFQNumber, r.CustomerName, r.CustomerContactPerson, r.Email, r.Phone,
		r.CompanyName, r.ReceivedDate, r.DueDate, r.ProductProjectName,
		r.Category, r.Source, r.AssignedEngineerID, r.AssignedSalesPersonID,
		r.Priority, r.EstimatedValue, r.Currency, r.ExpectedOrderDate,
		r.Status, r.RemarksNotes, r.CreatedBy,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return rfq.RFQ{}, fmt.Errorf("insert rfq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		insert into status_audit_log (rfq_id, old_status, new_status, changed_by)
		values ($1, null, $2, $3)
	`, r.ID, r.Status, v.UserID); err != nil {
		return rfq.RFQ{}, fmt.Errorf("insert audit log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return rfq.RFQ{}, err
	}
	return r, nil
}

// assignments builds a dynamic SET list with mechanically numbered
// placeholders, mirroring the predicate builder on the read side.
type assignments struct {
	frags []string
	args  []any
}

func (a *assignments) set(column string, value any) {
	a.args = append(a.args, value)
	a.frags = append(a.frags, column+" = $"+strconv.Itoa(len(a.args)))
}

func (a *assignments) bind(value any) string {
	a.args = append(a.args, value)
	return "$" + strconv.Itoa(len(a.args))
}

// Update applies a partial update inside one transaction: load the current
// row FOR UPDATE, enforce scope and workflow rules, write the new values,
// and append the audit (and notification) rows before committing.
func (s *Store) Update(ctx context.Context, v rfq.Viewer, id int64, in rfq.UpdateInput) (rfq.UpdateOutcome, error) {
	if in.Empty() {
		return rfq.UpdateOutcome{}, &rfq.ValidationError{Msg: "no fields to update"}
	}
	if err := in.Validate(); err != nil {
		return rfq.UpdateOutcome{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rfq.UpdateOutcome{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing rfq.RFQ
	err = tx.QueryRowContext(ctx, `
		select id, rfq_number, status, reason_for_lost_on_hold,
		       assigned_engineer_id, assigned_sales_person_id, created_by
		from rfqs where id = $1 for update
	`, id).Scan(&existing.ID, &existing.RFQNumber, &existing.Status, &existing.ReasonForLostOnHold,
		&existing.AssignedEngineerID, &existing.AssignedSalesPersonID, &existing.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return rfq.UpdateOutcome{}, rfq.ErrNotFound
	}
	if err != nil {
		return rfq.UpdateOutcome{}, fmt.Errorf("load rfq: %w", err)
	}
	if !rfq.CanView(v, existing) {
		return rfq.UpdateOutcome{}, rfq.ErrAccessDenied
	}

	statusChanged := in.Status != nil && *in.Status != existing.Status
	if statusChanged {
		var quotations, approved int64
		err := tx.QueryRowContext(ctx, `
			select count(*),
			       count(*) filter (where approval_status = 'Approved')
			from quotations where rfq_id = $1
		`, id).Scan(&quotations, &approved)
		if err != nil {
			return rfq.UpdateOutcome{}, fmt.Errorf("count quotations: %w", err)
		}
		reason := in.ReasonForLostOnHold
		if reason == nil {
			reason = existing.ReasonForLostOnHold
		}
		if err := rfq.CheckStatusRule(*in.Status, reason, quotations, approved); err != nil {
			return rfq.UpdateOutcome{}, err
		}
	}

	a := &assignments{}
	if in.CustomerName != nil {
		a.set("customer_name", *in.CustomerName)
	}
	if in.CustomerContactPerson != nil {
		a.set("customer_contact_person", *in.CustomerContactPerson)
	}
	if in.Email != nil {
		a.set("email", *in.Email)
	}
	if in.Phone != nil {
		a.set("phone", *in.Phone)
	}
	if in.CompanyName != nil {
		a.set("company_name", *in.CompanyName)
	}
	if in.ReceivedDate != nil {
		a.set("rfq_received_date", *in.ReceivedDate)
	}
	if in.DueDate != nil {
		a.set("rfq_due_date", *in.DueDate)
	}
	if in.ProductProjectName != nil {
		a.set("product_project_name", *in.ProductProjectName)
	}
	if in.Category != nil {
		a.set("rfq_category", *in.Category)
	}
	if in.Source != nil {
		a.set("rfq_source", *in.Source)
	}
	if in.AssignedEngineerID != nil {
		a.set("assigned_engineer_id", *in.AssignedEngineerID)
	}
	if in.AssignedSalesPersonID != nil {
		a.set("assigned_sales_person_id", *in.AssignedSalesPersonID)
	}
	if in.Priority != nil {
		a.set("priority", *in.Priority)
	}
	if in.EstimatedValue != nil {
		a.set("estimated_project_value", *in.EstimatedValue)
	}
	if in.Currency != nil {
		a.set("currency", *in.Currency)
	}
	if in.ExpectedOrderDate != nil {
		a.set("expected_order_date", *in.ExpectedOrderDate)
	}
	if in.Status != nil {
		a.set("status", *in.Status)
	}
	if in.ReasonForLostOnHold != nil {
		a.set("reason_for_lost_on_hold", *in.ReasonForLostOnHold)
	}
	if in.RemarksNotes != nil {
		a.set("remarks_notes", *in.RemarksNotes)
	}
	a.frags = append(a.frags, "updated_at = now()")

	updateQuery := "update rfqs set " + joinFrags(a.frags) + " where id = " + a.bind(id) + returningRFQ

	var r rfq.RFQ
	err = tx.QueryRowContext(ctx, updateQuery, a.args...).Scan(
		&r.ID, &r.RFQNumber, &r.CustomerName, &r.CustomerContactPerson, &r.Email, &r.Phone,
		&r.CompanyName, &r.ReceivedDate, &r.DueDate, &r.ProductProjectName,
		&r.Category, &r.Source, &r.AssignedEngineerID, &r.AssignedSalesPersonID,
		&r.Priority, &r.EstimatedValue, &r.Currency, &r.ExpectedOrderDate,
		&r.Status, &r.ReasonForLostOnHold, &r.RemarksNotes, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return rfq.UpdateOutcome{}, fmt.Errorf("update rfq: %w", err)
	}

	if statusChanged {
		if _, err := tx.ExecContext(ctx, `
			insert into status_audit_log (rfq_id, old_status, new_status, changed_by, change_reason)
			values ($1, $2, $3, $4, $5)
		`, id, existing.Status, *in.Status, v.UserID, in.ReasonForLostOnHold); err != nil {
			return rfq.UpdateOutcome{}, fmt.Errorf("insert audit log: %w", err)
		}

		if *in.Status == rfq.StatusWon || *in.Status == rfq.StatusLost {
			title := fmt.Sprintf("RFQ %s marked as %s", existing.RFQNumber, *in.Status)
			if _, err := tx.ExecContext(ctx, `
				insert into notifications (user_id, rfq_id, notification_type, title, message)
				values ($1, $2, 'status_change', $3, $4)
			`, v.UserID, id, title, title); err != nil {
				return rfq.UpdateOutcome{}, fmt.Errorf("insert notification: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return rfq.UpdateOutcome{}, err
	}
	return rfq.UpdateOutcome{RFQ: r, OldStatus: existing.Status, StatusChanged: statusChanged}, nil
}

const returningRFQ = ` returning
	id, rfq_number, customer_name, customer_contact_person, email, phone,
	company_name, rfq_received_date, rfq_due_date, product_project_name,
	rfq_category, rfq_source, assigned_engineer_id, assigned_sales_person_id,
	priority, estimated_project_value, currency, expected_order_date,
	status, reason_for_lost_on_hold, remarks_notes, created_by, created_at, updated_at`

func joinFrags(frags []string) string {
	out := ""
	for i, f := range frags {
		if i > 0 {
			out += ", "
		}
		out += f
	}
	return out
}

// Delete removes an RFQ. Admin only; dependent audit rows cascade in the
// schema.
func (s *Store) Delete(ctx context.Context, v rfq.Viewer, id int64) error {
	if v.Role != auth.RoleAdmin {
		return rfq.ErrAccessDenied
	}
	res, err := s.db.ExecContext(ctx, `delete from rfqs where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rfq: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rfq.ErrNotFound
	}
	return nil
}

// UsersByRole lists active users for the form dropdowns.
func (s *Store) UsersByRole(ctx context.Context, role auth.Role) ([]rfq.UserRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, full_name, email
		from users
		where role = $1 and is_active
		order by full_name
	`, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []rfq.UserRef
	for rows.Next() {
		var u rfq.UserRef
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
