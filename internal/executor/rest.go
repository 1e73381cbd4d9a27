package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// restSourceConfig is the config blob shape for REST API sources.
type restSourceConfig struct {
	BaseURL string            `json:"baseUrl"`
	Headers map[string]string `json:"headers"`
}

const restBodyLimit = 4 * 1024 * 1024

// RESTExecutor proxies reads and writes to a configured REST API.
// Reads map to GET with params as query string; writes map to POST with the
// payload as the JSON body. The endpoint must be a relative path under the
// source's base URL.
type RESTExecutor struct {
	client *http.Client
	logger *zap.Logger
}

// NewRESTExecutor creates a RESTExecutor with the given request timeout.
func NewRESTExecutor(timeout time.Duration, logger *zap.Logger) *RESTExecutor {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RESTExecutor{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Execute implements Executor for rest_api sources.
func (e *RESTExecutor) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	var cfg restSourceConfig
	if err := json.Unmarshal(req.Source.Config, &cfg); err != nil {
		return nil, fmt.Errorf("RESTExecutor: source %q config: %w", req.Source.Name, err)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("RESTExecutor: source %q has no baseUrl", req.Source.Name)
	}

	target, err := joinEndpoint(cfg.BaseURL, req.Endpoint)
	if err != nil {
		return nil, err
	}

	var httpReq *http.Request
	switch req.Operation {
	case "read":
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("RESTExecutor: %w", err)
		}
		q := httpReq.URL.Query()
		for k, v := range req.Params {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		httpReq.URL.RawQuery = q.Encode()

	case "write":
		body, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("RESTExecutor: payload: %w", err)
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("RESTExecutor: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

	default:
		return nil, fmt.Errorf("%w: operation %q on rest_api source", ErrUnsupported, req.Operation)
	}

	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("RESTExecutor: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, restBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("RESTExecutor: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("RESTExecutor: upstream returned %d", resp.StatusCode)
	}

	if json.Valid(body) {
		return json.RawMessage(body), nil
	}
	// Non-JSON upstream body is wrapped so the bridge response stays JSON.
	return marshalResult(map[string]any{"body": string(body)})
}

// joinEndpoint resolves endpoint under baseURL and refuses anything that
// escapes it: absolute URLs, scheme or host changes, and ".." traversal out
// of the base path. The resolved path must stay at or under base.Path on a
// path-segment boundary, so "/v1/tools" does not admit "/v1/tools-admin".
func joinEndpoint(baseURL, endpoint string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("RESTExecutor: baseUrl: %w", err)
	}

	if strings.Contains(endpoint, "://") {
		return "", fmt.Errorf("RESTExecutor: endpoint must be a relative path")
	}
	joined, err := url.JoinPath(base.String(), endpoint)
	if err != nil {
		return "", fmt.Errorf("RESTExecutor: endpoint: %w", err)
	}

	resolved, err := url.Parse(joined)
	if err != nil {
		return "", fmt.Errorf("RESTExecutor: endpoint: %w", err)
	}
	if resolved.Host != base.Host || resolved.Scheme != base.Scheme {
		return "", fmt.Errorf("RESTExecutor: endpoint escapes base URL")
	}
	basePath := strings.TrimSuffix(base.Path, "/")
	if resolved.Path != basePath && !strings.HasPrefix(resolved.Path, basePath+"/") {
		return "", fmt.Errorf("RESTExecutor: endpoint escapes base URL")
	}
	return resolved.String(), nil
}
