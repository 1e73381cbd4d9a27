package registry

import (
	"errors"
	"testing"
)

func TestParseNameList(t *testing.T) {
	names, err := parseNameList(`["users"," orders "]`, "read_tables")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[1] != "orders" {
		t.Fatalf("expected trimmed entries, got %v", names)
	}
}

func TestParseNameList_Empty(t *testing.T) {
	for _, raw := range []string{"", "null", "[]"} {
		names, err := parseNameList(raw, "read_tables")
		if err != nil {
			t.Fatalf("%q: %v", raw, err)
		}
		if len(names) != 0 {
			t.Fatalf("%q: expected empty list, got %v", raw, names)
		}
	}
}

func TestParseNameList_Rejections(t *testing.T) {
	cases := []string{
		`{"users": true}`, // not an array
		`["users", 7]`,    // non-string entry
		`["users", ""]`,   // empty entry
		`["users", "  "]`, // whitespace-only entry
		`not json`,
	}
	for _, raw := range cases {
		if _, err := parseNameList(raw, "read_tables"); !errors.Is(err, ErrMalformedRule) {
			t.Fatalf("%q: expected ErrMalformedRule, got %v", raw, err)
		}
	}
}

func TestValidateSourceType(t *testing.T) {
	if _, err := validateSourceType("postgres"); err != nil {
		t.Fatal(err)
	}
	if _, err := validateSourceType("fax_machine"); !errors.Is(err, ErrMalformedRule) {
		t.Fatalf("expected ErrMalformedRule, got %v", err)
	}
}

func TestValidateVisibility(t *testing.T) {
	for _, v := range []string{"private", "department", "company", "public"} {
		if _, err := validateVisibility(v); err != nil {
			t.Fatalf("%s: %v", v, err)
		}
	}
	if _, err := validateVisibility("secret"); !errors.Is(err, ErrMalformedRule) {
		t.Fatalf("expected ErrMalformedRule, got %v", err)
	}
}
