package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"rfqtrack.org/internal/audit"
	"rfqtrack.org/internal/auth"
	"rfqtrack.org/internal/obs"
	"rfqtrack.org/internal/rfq"
	"rfqtrack.org/internal/stream"
)

func (a *API) listPage(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	q := r.URL.Query()
	filter := rfq.ListFilter{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		Search:   q.Get("search"),
		Page:     atoiDefault(q.Get("page"), 1),
		Limit:    atoiDefault(q.Get("limit"), 0),
	}

	res, err := a.svc.List(r.Context(), v, filter)
	if err != nil {
		a.pageError(w, "list rfqs", err)
		return
	}

	a.tmpl.Render(w, http.StatusOK, "rfq_list.html", map[string]any{
		"Title":      "RFQs",
		"Viewer":     identityOf(r),
		"Rows":       res.Rows,
		"Pagination": res.Pagination,
		"Filter":     filter,
		"Statuses":   rfq.Statuses,
		"Priorities": rfq.Priorities,
		"PrevURL":    pageURL(filter, res.Pagination.Page-1),
		"NextURL":    pageURL(filter, res.Pagination.Page+1),
	})
}

// pageURL rebuilds the listing URL for another page, keeping the active
// filters so paginating does not reset them.
func pageURL(f rfq.ListFilter, page int) string {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Priority != "" {
		q.Set("priority", f.Priority)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	q.Set("page", strconv.Itoa(page))
	return "/rfq/?" + q.Encode()
}

func (a *API) newRFQPage(w http.ResponseWriter, r *http.Request) {
	a.renderNewForm(w, r, http.StatusOK, "")
}

func (a *API) renderNewForm(w http.ResponseWriter, r *http.Request, code int, errMsg string) {
	engineers, err := a.svc.UsersByRole(r.Context(), auth.RoleEngineer)
	if err != nil {
		a.pageError(w, "load engineers", err)
		return
	}
	sales, err := a.svc.UsersByRole(r.Context(), auth.RoleSales)
	if err != nil {
		a.pageError(w, "load sales", err)
		return
	}

	a.tmpl.Render(w, code, "rfq_form.html", map[string]any{
		"Title":      "New RFQ",
		"Viewer":     identityOf(r),
		"Engineers":  engineers,
		"Sales":      sales,
		"Priorities": rfq.Priorities,
		"Error":      errMsg,
	})
}

// handleCreateRFQ persists the form. Malformed input re-renders the form at
// 400 with the message; success lands back on the listing.
func (a *API) handleCreateRFQ(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		a.renderNewForm(w, r, http.StatusBadRequest, "malformed form")
		return
	}

	in, err := rfq.ParseNewRFQ(r.PostForm, v)
	if err != nil {
		a.renderNewForm(w, r, http.StatusBadRequest, err.Error())
		return
	}

	created, err := a.svc.Create(r.Context(), v, in)
	if err != nil {
		a.pageError(w, "create rfq", err)
		return
	}

	obs.ObserveRFQCreated()
	a.publishStatus(created.ID, created.RFQNumber, "", created.Status, v.UserID)
	_ = audit.LogEvent(r.Context(), "rfq.created", map[string]any{
		"rfq_id":     created.ID,
		"rfq_number": created.RFQNumber,
	})

	http.Redirect(w, r, "/rfq/", http.StatusSeeOther)
}

func (a *API) detailPage(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	id, err := pathID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	a.renderDetail(w, r, v, id, http.StatusOK, "")
}

func (a *API) renderDetail(w http.ResponseWriter, r *http.Request, v rfq.Viewer, id int64, code int, errMsg string) {
	d, err := a.svc.Get(r.Context(), v, id)
	if err != nil {
		a.pageError(w, "get rfq", err)
		return
	}

	a.tmpl.Render(w, code, "rfq_detail.html", map[string]any{
		"Title":    d.RFQNumber,
		"Viewer":   identityOf(r),
		"RFQ":      d,
		"Statuses": rfq.Statuses,
		"Error":    errMsg,
	})
}

// handleStatusUpdate moves an RFQ through the workflow. Rule violations
// re-render the detail page at 400 with the message; the record stays put.
func (a *API) handleStatusUpdate(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	id, err := pathID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		a.renderDetail(w, r, v, id, http.StatusBadRequest, "malformed form")
		return
	}

	status := rfq.Status(r.PostFormValue("status"))
	in := rfq.UpdateInput{Status: &status}
	if reason := r.PostFormValue("reason"); reason != "" {
		in.ReasonForLostOnHold = &reason
	}

	out, err := a.svc.Update(r.Context(), v, id, in)
	if err != nil {
		var vErr *rfq.ValidationError
		var rErr *rfq.RuleError
		if errors.As(err, &vErr) || errors.As(err, &rErr) {
			a.renderDetail(w, r, v, id, http.StatusBadRequest, err.Error())
			return
		}
		a.pageError(w, "update rfq", err)
		return
	}

	if out.StatusChanged {
		obs.ObserveStatusChange(string(out.Status))
		a.publishStatus(out.ID, out.RFQNumber, out.OldStatus, out.Status, v.UserID)
		_ = audit.LogEvent(r.Context(), "rfq.status_changed", map[string]any{
			"rfq_id":     out.ID,
			"rfq_number": out.RFQNumber,
			"old_status": string(out.OldStatus),
			"new_status": string(out.Status),
		})
	}

	http.Redirect(w, r, fmt.Sprintf("/rfq/%d", id), http.StatusSeeOther)
}

func (a *API) handleDeleteRFQ(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	id, err := pathID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := a.svc.Delete(r.Context(), v, id); err != nil {
		a.pageError(w, "delete rfq", err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rfq.deleted", map[string]any{"rfq_id": id})
	http.Redirect(w, r, "/rfq/", http.StatusSeeOther)
}

func (a *API) publishStatus(id int64, number string, old, status rfq.Status, by int64) {
	if a.events == nil {
		return
	}
	a.events.Publish(stream.StatusEvent{
		RFQID:     id,
		RFQNumber: number,
		OldStatus: string(old),
		NewStatus: string(status),
		ChangedBy: by,
		Timestamp: time.Now().UTC(),
	})
}

// pageError renders domain errors for the browser flow.
func (a *API) pageError(w http.ResponseWriter, scope string, err error) {
	switch {
	case errors.Is(err, rfq.ErrNotFound):
		http.Error(w, "RFQ not found", http.StatusNotFound)
	case errors.Is(err, rfq.ErrAccessDenied):
		http.Error(w, "access denied", http.StatusForbidden)
	default:
		obs.LogError(scope, err, nil)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func identityOf(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

func atoiDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
