package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eric0324/falcon-bridge/internal/registry"
	"go.uber.org/zap"
)

func restSource(t *testing.T, baseURL string) registry.DataSource {
	t.Helper()
	cfg, err := json.Marshal(map[string]any{
		"baseUrl": baseURL,
		"headers": map[string]string{"X-Api-Key": "secret"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return registry.DataSource{
		Name:     "demo_api",
		Type:     registry.SourceRESTAPI,
		Config:   cfg,
		IsActive: true,
	}
}

func TestRESTExecutor_Read(t *testing.T) {
	var gotPath, gotKey, gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		gotQuery = r.URL.Query().Get("status")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":1}]}`))
	}))
	defer ts.Close()

	e := NewRESTExecutor(2*time.Second, zap.NewNop())
	result, err := e.Execute(context.Background(), Request{
		Operation: "read",
		Source:    restSource(t, ts.URL),
		Endpoint:  "/posts",
		Params:    map[string]any{"status": "published"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/posts" {
		t.Fatalf("expected /posts, got %s", gotPath)
	}
	if gotKey != "secret" {
		t.Fatal("expected configured header to be forwarded")
	}
	if gotQuery != "published" {
		t.Fatalf("expected params as query string, got %q", gotQuery)
	}
	if string(result) != `{"items":[{"id":1}]}` {
		t.Fatalf("unexpected result passthrough: %s", result)
	}
}

func TestRESTExecutor_WritePostsPayload(t *testing.T) {
	var gotMethod string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer ts.Close()

	e := NewRESTExecutor(2*time.Second, zap.NewNop())
	_, err := e.Execute(context.Background(), Request{
		Operation: "write",
		Source:    restSource(t, ts.URL),
		Endpoint:  "/comments",
		Payload:   map[string]any{"body": "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST, got %s", gotMethod)
	}
	if gotBody["body"] != "hello" {
		t.Fatalf("expected payload body, got %v", gotBody)
	}
}

func TestRESTExecutor_UpstreamErrorSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	e := NewRESTExecutor(2*time.Second, zap.NewNop())
	_, err := e.Execute(context.Background(), Request{
		Operation: "read",
		Source:    restSource(t, ts.URL),
		Endpoint:  "/posts",
	})
	if err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestRESTExecutor_EndpointMustStayUnderBase(t *testing.T) {
	e := NewRESTExecutor(2*time.Second, zap.NewNop())

	_, err := e.Execute(context.Background(), Request{
		Operation: "read",
		Source:    restSource(t, "http://internal.example"),
		Endpoint:  "https://evil.example/steal",
	})
	if err == nil {
		t.Fatal("expected absolute endpoint to be rejected")
	}
}

func TestJoinEndpoint_TraversalStaysUnderBase(t *testing.T) {
	base := "http://internal.example/v1/tools"

	bad := []string{
		"../../admin/secrets",
		"/../admin",
		"lookup/../../admin",
		"../tools-admin", // same-host sibling reached via ..
	}
	for _, endpoint := range bad {
		if _, err := joinEndpoint(base, endpoint); err == nil {
			t.Errorf("expected %q to be rejected", endpoint)
		}
	}

	// ".." that resolves back under the base is still fine.
	got, err := joinEndpoint(base, "lookup/../search")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://internal.example/v1/tools/search" {
		t.Fatalf("unexpected resolution: %s", got)
	}
}

func TestRESTExecutor_DeleteUnsupported(t *testing.T) {
	e := NewRESTExecutor(2*time.Second, zap.NewNop())
	_, err := e.Execute(context.Background(), Request{
		Operation: "delete",
		Source:    restSource(t, "http://internal.example"),
		Endpoint:  "/posts",
	})
	if err == nil {
		t.Fatal("expected delete on rest_api to be unsupported")
	}
}
