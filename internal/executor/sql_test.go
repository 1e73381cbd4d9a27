package executor

import (
	"testing"
)

func TestQuoteIdent(t *testing.T) {
	q, err := quoteIdent("users")
	if err != nil {
		t.Fatal(err)
	}
	if q != `"users"` {
		t.Fatalf("expected quoted ident, got %s", q)
	}

	bad := []string{
		"users; DROP TABLE users",
		`users"`,
		"users.orders",
		"",
		"1col",
		"col name",
	}
	for _, name := range bad {
		if _, err := quoteIdent(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestBuildWhere(t *testing.T) {
	where, args, err := buildWhere(map[string]any{"status": "open", "id": 7}, 1)
	if err != nil {
		t.Fatal(err)
	}
	// Keys are sorted, so id binds $1 and status binds $2.
	if where != ` WHERE "id" = $1 AND "status" = $2` {
		t.Fatalf("unexpected where clause: %q", where)
	}
	if len(args) != 2 || args[0] != 7 || args[1] != "open" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildWhere_RejectsBadColumn(t *testing.T) {
	_, _, err := buildWhere(map[string]any{"id = 1 OR 1=1 --": "x"}, 1)
	if err == nil {
		t.Fatal("expected injection-shaped column to be rejected")
	}
}

func TestBuildWhere_Empty(t *testing.T) {
	where, args, err := buildWhere(nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if where != "" || args != nil {
		t.Fatalf("expected empty clause, got %q %v", where, args)
	}
}
