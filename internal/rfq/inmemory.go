package rfq

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"rfqtrack.org/internal/auth"
)

// InMemory implements Service with in-process state. It mirrors the
// Postgres store's semantics closely enough to back handler tests and the
// scoping/pagination property tests without a database.
type InMemory struct {
	mu         sync.RWMutex
	seq        int64
	numberSeq  int64
	auditSeq   int64
	rfqs       map[int64]*RFQ
	users      map[int64]UserRef
	roles      map[int64]auth.Role
	quotations map[int64][]Quotation
	history    map[int64][]StatusChange
	now        func() time.Time
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		rfqs:       make(map[int64]*RFQ),
		users:      make(map[int64]UserRef),
		roles:      make(map[int64]auth.Role),
		quotations: make(map[int64][]Quotation),
		history:    make(map[int64][]StatusChange),
		now:        time.Now,
	}
}

// WithClock overrides the time source. Only intended for test use.
func (s *InMemory) WithClock(fn func() time.Time) *InMemory {
	if fn != nil {
		s.now = fn
	}
	return s
}

// AddUser registers a user for dropdown queries and joined names.
func (s *InMemory) AddUser(id int64, fullName, email string, role auth.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = UserRef{ID: id, FullName: fullName, Email: email}
	s.roles[id] = role
}

// AddQuotation attaches a quotation to an RFQ.
func (s *InMemory) AddQuotation(q Quotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotations[q.RFQID] = append(s.quotations[q.RFQID], q)
}

func (s *InMemory) userName(id *int64) *string {
	if id == nil {
		return nil
	}
	u, ok := s.users[*id]
	if !ok {
		return nil
	}
	name := u.FullName
	return &name
}

func (s *InMemory) toRow(r *RFQ) Row {
	created := r.CreatedBy
	return Row{
		RFQ:                     *r,
		AssignedEngineerName:    s.userName(r.AssignedEngineerID),
		AssignedSalesPersonName: s.userName(r.AssignedSalesPersonID),
		CreatedByName:           s.userName(&created),
		QuotationCount:          int64(len(s.quotations[r.ID])),
	}
}

func matchesScope(v Viewer, r *RFQ) bool {
	return CanView(v, *r)
}

func matchesFilter(f ListFilter, r *RFQ) bool {
	if f.Status != "" && string(r.Status) != f.Status {
		return false
	}
	if f.Priority != "" && r.Priority != f.Priority {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		for _, hay := range []*string{&r.RFQNumber, &r.CustomerName, orEmpty(r.ProductProjectName), orEmpty(r.CompanyName)} {
			if strings.Contains(strings.ToLower(*hay), needle) {
				return true
			}
		}
		return false
	}
	return true
}

func orEmpty(s *string) *string {
	if s == nil {
		empty := ""
		return &empty
	}
	return s
}

func (s *InMemory) List(ctx context.Context, v Viewer, f ListFilter) (ListResult, error) {
	f = f.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*RFQ
	for _, r := range s.rfqs {
		if matchesScope(v, r) && matchesFilter(f, r) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := f.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + f.Limit
	if end > len(matched) {
		end = len(matched)
	}

	rows := make([]Row, 0, end-start)
	for _, r := range matched[start:end] {
		rows = append(rows, s.toRow(r))
	}

	pages := (total + int64(f.Limit) - 1) / int64(f.Limit)
	return ListResult{
		Rows: rows,
		Pagination: Pagination{
			Page:  f.Page,
			Limit: f.Limit,
			Total: total,
			Pages: pages,
		},
	}, nil
}

func (s *InMemory) Get(ctx context.Context, v Viewer, id int64) (Detail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rfqs[id]
	if !ok {
		return Detail{}, ErrNotFound
	}
	if !matchesScope(v, r) {
		return Detail{}, ErrAccessDenied
	}

	d := Detail{Row: s.toRow(r)}
	d.Quotations = append(d.Quotations, s.quotations[id]...)
	d.StatusHistory = append(d.StatusHistory, s.history[id]...)
	// Most recent change first, matching the store's ORDER BY.
	sort.Slice(d.StatusHistory, func(i, j int) bool {
		return d.StatusHistory[i].ChangedAt.After(d.StatusHistory[j].ChangedAt)
	})
	return d, nil
}

func (s *InMemory) Create(ctx context.Context, v Viewer, in NewRFQInput) (RFQ, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.seq++
	s.numberSeq++
	r := &RFQ{
		ID:                    s.seq,
		RFQNumber:             fmt.Sprintf("RFQ-%d-%04d", now.Year(), s.numberSeq),
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
		Status:                StatusEnquiry,
		RemarksNotes:          in.RemarksNotes,
		CreatedBy:             v.UserID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	s.rfqs[r.ID] = r

	s.auditSeq++
	s.history[r.ID] = append(s.history[r.ID], StatusChange{
		ID:        s.auditSeq,
		RFQID:     r.ID,
		OldStatus: nil,
		NewStatus: StatusEnquiry,
		ChangedBy: v.UserID,
		ChangedAt: now,
	})
	return *r, nil
}

func (s *InMemory) Update(ctx context.Context, v Viewer, id int64, in UpdateInput) (UpdateOutcome, error) {
	if in.Empty() {
		return UpdateOutcome{}, validationf("no fields to update")
	}
	if err := in.Validate(); err != nil {
		return UpdateOutcome{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rfqs[id]
	if !ok {
		return UpdateOutcome{}, ErrNotFound
	}
	if !matchesScope(v, r) {
		return UpdateOutcome{}, ErrAccessDenied
	}

	if in.Status != nil && *in.Status != r.Status {
		var approved int64
		for _, q := range s.quotations[id] {
			if q.ApprovalStatus == "Approved" {
				approved++
			}
		}
		reason := in.ReasonForLostOnHold
		if reason == nil {
			reason = r.ReasonForLostOnHold
		}
		if err := CheckStatusRule(*in.Status, reason, int64(len(s.quotations[id])), approved); err != nil {
			return UpdateOutcome{}, err
		}
	}

	now := s.now().UTC()
	oldStatus := r.Status

	applyText := func(dst **string, src *string) {
		if src != nil {
			*dst = src
		}
	}
	if in.CustomerName != nil {
		r.CustomerName = *in.CustomerName
	}
	applyText(&r.CustomerContactPerson, in.CustomerContactPerson)
	applyText(&r.Email, in.Email)
	applyText(&r.Phone, in.Phone)
	applyText(&r.CompanyName, in.CompanyName)
	applyText(&r.ProductProjectName, in.ProductProjectName)
	applyText(&r.Category, in.Category)
	applyText(&r.Source, in.Source)
	applyText(&r.ReasonForLostOnHold, in.ReasonForLostOnHold)
	applyText(&r.RemarksNotes, in.RemarksNotes)
	if in.ReceivedDate != nil {
		r.ReceivedDate = *in.ReceivedDate
	}
	if in.DueDate != nil {
		r.DueDate = in.DueDate
	}
	if in.ExpectedOrderDate != nil {
		r.ExpectedOrderDate = in.ExpectedOrderDate
	}
	if in.AssignedEngineerID != nil {
		r.AssignedEngineerID = in.AssignedEngineerID
	}
	if in.AssignedSalesPersonID != nil {
		r.AssignedSalesPersonID = in.AssignedSalesPersonID
	}
	if in.Priority != nil {
		r.Priority = *in.Priority
	}
	if in.EstimatedValue != nil {
		r.EstimatedValue = in.EstimatedValue
	}
	if in.Currency != nil {
		r.Currency = *in.Currency
	}
	if in.Status != nil {
		r.Status = *in.Status
	}
	r.UpdatedAt = now

	changed := in.Status != nil && *in.Status != oldStatus
	if changed {
		s.auditSeq++
		old := oldStatus
		s.history[id] = append(s.history[id], StatusChange{
			ID:           s.auditSeq,
			RFQID:        id,
			OldStatus:    &old,
			NewStatus:    *in.Status,
			ChangedBy:    v.UserID,
			ChangeReason: in.ReasonForLostOnHold,
			ChangedAt:    now,
		})
	}
	return UpdateOutcome{RFQ: *r, OldStatus: oldStatus, StatusChanged: changed}, nil
}

func (s *InMemory) Delete(ctx context.Context, v Viewer, id int64) error {
	if v.Role != auth.RoleAdmin {
		return ErrAccessDenied
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rfqs[id]; !ok {
		return ErrNotFound
	}
	delete(s.rfqs, id)
	delete(s.quotations, id)
	delete(s.history, id)
	return nil
}

func (s *InMemory) Dashboard(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	stats := Stats{
		StatusDist: ChartSeries{Labels: []string{}, Values: []int64{}},
		Trend:      ChartSeries{Labels: []string{}, Values: []int64{}},
	}

	statusCounts := map[Status]int64{}
	trendCounts := map[string]int64{}
	cutoff := now.AddDate(0, -6, 0)

	for _, r := range s.rfqs {
		stats.TotalRFQs++
		if r.Status == StatusEnquiry || r.Status == StatusUnderReview {
			stats.PendingQuotes++
		}
		if r.Status == StatusWon &&
			r.UpdatedAt.Month() == now.Month() && r.UpdatedAt.Year() == now.Year() {
			stats.WonThisMonth++
		}
		statusCounts[r.Status]++
		if r.ReceivedDate.After(cutoff) {
			trendCounts[r.ReceivedDate.Format("2006-01")]++
		}
	}

	for _, st := range Statuses {
		if n, ok := statusCounts[st]; ok {
			stats.StatusDist.Labels = append(stats.StatusDist.Labels, string(st))
			stats.StatusDist.Values = append(stats.StatusDist.Values, n)
		}
	}

	months := make([]string, 0, len(trendCounts))
	for m := range trendCounts {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		t, _ := time.Parse("2006-01", m)
		stats.Trend.Labels = append(stats.Trend.Labels, t.Format("Jan"))
		stats.Trend.Values = append(stats.Trend.Values, trendCounts[m])
	}
	return stats, nil
}

func (s *InMemory) UsersByRole(ctx context.Context, role auth.Role) ([]UserRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []UserRef
	for id, r := range s.roles {
		if r == role {
			out = append(out, s.users[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *InMemory) MonthlyPerformance(ctx context.Context, v Viewer, year int) ([]MonthlyBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := map[string]*MonthlyBucket{}
	for _, r := range s.rfqs {
		if !matchesScope(v, r) || r.ReceivedDate.Year() != year {
			continue
		}
		key := r.ReceivedDate.Format("2006-01")
		b, ok := buckets[key]
		if !ok {
			b = &MonthlyBucket{Month: key}
			buckets[key] = b
		}
		b.TotalRFQs++
		switch r.Status {
		case StatusWon:
			b.Won++
		case StatusLost:
			b.Lost++
		case StatusQuotationSent:
			b.QuotationSent++
		}
		if r.EstimatedValue != nil {
			if b.TotalEstimatedValue == nil {
				b.TotalEstimatedValue = new(float64)
			}
			*b.TotalEstimatedValue += *r.EstimatedValue
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]MonthlyBucket, 0, len(keys))
	for _, k := range keys {
		out = append(out, *buckets[k])
	}
	return out, nil
}

var _ Service = (*InMemory)(nil)
