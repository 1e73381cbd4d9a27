package bridge

import (
	"errors"
	"testing"
)

func TestValidateAcceptsWellFormedRead(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}

	raw := []byte(`{
		"kind": "bridge-request",
		"id": "req-1",
		"operation": "read",
		"dataSource": "demo_postgres",
		"table": "users",
		"columns": ["id", "email"]
	}`)

	msg, err := v.Validate(raw)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if msg.ID != "req-1" || msg.Operation != "read" || msg.DataSource != "demo_postgres" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if len(msg.Columns) != 2 || msg.Columns[0] != "id" {
		t.Errorf("columns not parsed: %v", msg.Columns)
	}
}

func TestValidateAcceptsListSourcesWithoutDataSource(t *testing.T) {
	v, _ := NewValidator()

	raw := []byte(`{"kind": "bridge-request", "id": "d-1", "operation": "list-sources"}`)
	msg, err := v.Validate(raw)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if msg.Operation != "list-sources" {
		t.Errorf("operation = %q", msg.Operation)
	}
}

func TestValidateToleratesUnknownFields(t *testing.T) {
	v, _ := NewValidator()

	raw := []byte(`{
		"kind": "bridge-request",
		"id": "x",
		"operation": "list-sources",
		"futureField": {"nested": true}
	}`)
	if _, err := v.Validate(raw); err != nil {
		t.Errorf("unknown fields should be tolerated, got %v", err)
	}
}

func TestValidateRejectsMalformed(t *testing.T) {
	v, _ := NewValidator()

	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"not an object", `[1, 2, 3]`},
		{"missing id", `{"kind": "bridge-request", "operation": "read", "dataSource": "s"}`},
		{"empty id", `{"kind": "bridge-request", "id": "", "operation": "read", "dataSource": "s"}`},
		{"wrong kind", `{"kind": "bridge-response", "id": "x", "operation": "read", "dataSource": "s"}`},
		{"missing kind", `{"id": "x", "operation": "read", "dataSource": "s"}`},
		{"unknown operation", `{"kind": "bridge-request", "id": "x", "operation": "drop", "dataSource": "s"}`},
		{"columns wrong type", `{"kind": "bridge-request", "id": "x", "operation": "read", "dataSource": "s", "columns": "id,email"}`},
		{"payload wrong type", `{"kind": "bridge-request", "id": "x", "operation": "write", "dataSource": "s", "payload": [1]}`},
		{"read without dataSource", `{"kind": "bridge-request", "id": "x", "operation": "read"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate([]byte(tc.raw))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("want ErrMalformed, got %v", err)
			}
		})
	}
}

func TestErrorResponseShape(t *testing.T) {
	resp := errorResponse("r-9", "permission denied: unscoped")
	if resp.Kind != KindResponse || resp.ID != "r-9" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if resp.Result != nil {
		t.Error("error response must not carry a result")
	}
	if resp.Error == nil || *resp.Error != "permission denied: unscoped" {
		t.Errorf("error = %v", resp.Error)
	}
}
