package rfq

import (
	"strings"
	"testing"

	"rfqtrack.org/internal/auth"
)

func TestNormalizeClampsWindow(t *testing.T) {
	cases := []struct {
		name      string
		in        ListFilter
		wantPage  int
		wantLimit int
	}{
		{"zero values", ListFilter{}, 1, 50},
		{"negative page", ListFilter{Page: -3, Limit: 10}, 1, 10},
		{"zero limit", ListFilter{Page: 2, Limit: 0}, 2, 50},
		{"oversized limit", ListFilter{Page: 2, Limit: 5000}, 2, 50},
		{"valid window", ListFilter{Page: 4, Limit: 25}, 4, 25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.Normalize()
			if got.Page != tc.wantPage || got.Limit != tc.wantLimit {
				t.Fatalf("got page=%d limit=%d, want page=%d limit=%d",
					got.Page, got.Limit, tc.wantPage, tc.wantLimit)
			}
		})
	}
}

func TestBuildListAdminNoFilters(t *testing.T) {
	query, args := BuildList(Viewer{UserID: 1, Role: auth.RoleAdmin}, ListFilter{Page: 1, Limit: 50})

	if strings.Contains(query, "WHERE") {
		t.Fatalf("admin without filters must not constrain the query:\n%s", query)
	}
	if !strings.Contains(query, "ORDER BY r.created_at DESC, r.id DESC") {
		t.Fatalf("missing stable ordering:\n%s", query)
	}
	if !strings.Contains(query, "LIMIT $1 OFFSET $2") {
		t.Fatalf("unexpected pagination placeholders:\n%s", query)
	}
	if len(args) != 2 || args[0] != 50 || args[1] != 0 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildListEngineerScope(t *testing.T) {
	query, args := BuildList(Viewer{UserID: 7, Role: auth.RoleEngineer}, ListFilter{Page: 2, Limit: 10})

	if !strings.Contains(query, "WHERE r.assigned_engineer_id = $1") {
		t.Fatalf("engineer scope predicate missing:\n%s", query)
	}
	if !strings.Contains(query, "LIMIT $2 OFFSET $3") {
		t.Fatalf("pagination placeholders not renumbered after scope:\n%s", query)
	}
	want := []any{int64(7), 10, 10}
	if len(args) != len(want) {
		t.Fatalf("args: got %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d]: got %v, want %v", i, args[i], want[i])
		}
	}
}

func TestBuildListSalesScopeBindsTwoPlaceholders(t *testing.T) {
	query, args := BuildList(Viewer{UserID: 9, Role: auth.RoleSales}, ListFilter{Page: 1, Limit: 50})

	if !strings.Contains(query, "(r.assigned_sales_person_id = $1 OR r.created_by = $2)") {
		t.Fatalf("sales scope must bind independent placeholders:\n%s", query)
	}
	if args[0] != int64(9) || args[1] != int64(9) {
		t.Fatalf("both scope placeholders must carry the caller id: %v", args)
	}
}

func TestBuildListAllFilters(t *testing.T) {
	v := Viewer{UserID: 3, Role: auth.RoleSales}
	f := ListFilter{Status: "Won", Priority: "High", Search: "acme", Page: 3, Limit: 20}
	query, args := BuildList(v, f)

	wantFragments := []string{
		"(r.assigned_sales_person_id = $1 OR r.created_by = $2)",
		"r.status = $3",
		"r.priority = $4",
		"(r.rfq_number ILIKE $5 OR r.customer_name ILIKE $6 OR r.product_project_name ILIKE $7 OR r.company_name ILIKE $8)",
		"LIMIT $9 OFFSET $10",
	}
	for _, frag := range wantFragments {
		if !strings.Contains(query, frag) {
			t.Fatalf("missing %q in:\n%s", frag, query)
		}
	}

	want := []any{int64(3), int64(3), "Won", "High", "%acme%", "%acme%", "%acme%", "%acme%", 20, 40}
	if len(args) != len(want) {
		t.Fatalf("args: got %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d]: got %v, want %v", i, args[i], want[i])
		}
	}

	// The search OR group binds once per column; nothing relies on a driver
	// reusing one positional parameter.
	if n := strings.Count(query, "ILIKE"); n != 4 {
		t.Fatalf("expected 4 ILIKE branches, got %d", n)
	}
}

func TestBuildCountMatchesPredicates(t *testing.T) {
	v := Viewer{UserID: 5, Role: auth.RoleEngineer}
	f := ListFilter{Status: "Enquiry", Page: 1, Limit: 50}
	query, args := BuildCount(v, f)

	if !strings.HasPrefix(query, "SELECT COUNT(DISTINCT r.id) FROM rfqs r") {
		t.Fatalf("unexpected count query:\n%s", query)
	}
	if !strings.Contains(query, "r.assigned_engineer_id = $1") || !strings.Contains(query, "r.status = $2") {
		t.Fatalf("count query predicates diverge from listing:\n%s", query)
	}
	if strings.Contains(query, "LIMIT") || strings.Contains(query, "OFFSET") {
		t.Fatalf("count query must not paginate:\n%s", query)
	}
	if len(args) != 2 {
		t.Fatalf("unexpected args: %v", args)
	}
}
