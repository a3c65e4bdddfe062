package migrate

import (
	"strings"
	"testing"
)

func TestSplitStatementsRespectsDollarQuoting(t *testing.T) {
	input := `create table t (id int);
create or replace function f() returns text as $$
declare
	n int;
begin
	select 1 into n;
	return 'x';
end;
$$ language plpgsql;
insert into t values (1);`

	stmts := splitStatements(input)
	if len(stmts) != 3 {
		t.Fatalf("want 3 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[1], "language plpgsql") {
		t.Fatalf("function body split apart: %q", stmts[1])
	}
}

func TestSplitStatementsIgnoresSemicolonInString(t *testing.T) {
	stmts := splitStatements(`insert into t values ('a;b'); insert into t values ('c');`)
	if len(stmts) != 2 {
		t.Fatalf("want 2 statements, got %d: %q", len(stmts), stmts)
	}
}
