// Package chread provides read access to the ClickHouse bridge_decisions
// table for the admin API. Writes go through internal/storage.
package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse bridge_decisions table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// DecisionRow represents a single row from the bridge_decisions table.
type DecisionRow struct {
	RequestID     string
	ClientID      string
	Timestamp     time.Time
	ToolID        string
	UserID        string
	Department    string
	Operation     string
	SourceName    string
	TableName     string
	Decision      string
	DenyReason    string
	ColumnsAsked  uint32
	ColumnsServed uint32
	ExecutorError uint8
	LatencyMs     float32
}

const decisionColumns = "request_id, client_id, timestamp, " +
	"tool_id, user_id, department, " +
	"operation, source_name, table_name, " +
	"decision, deny_reason, " +
	"columns_asked, columns_served, executor_error, latency_ms"

func scanDecision(row interface{ Scan(...any) error }, d *DecisionRow) error {
	return row.Scan(
		&d.RequestID, &d.ClientID, &d.Timestamp,
		&d.ToolID, &d.UserID, &d.Department,
		&d.Operation, &d.SourceName, &d.TableName,
		&d.Decision, &d.DenyReason,
		&d.ColumnsAsked, &d.ColumnsServed, &d.ExecutorError, &d.LatencyMs,
	)
}

// ListDecisionsParams holds filters and pagination for decision listing.
type ListDecisionsParams struct {
	ClientID   string
	ToolID     *string
	UserID     *string
	Department *string
	Decision   *string
	Source     *string
	StartTime  *time.Time
	EndTime    *time.Time
	Page       int
	PageSize   int
}

// ListDecisions returns paginated, filtered decision events and the total count.
func (r *Reader) ListDecisions(ctx context.Context, params ListDecisionsParams) ([]DecisionRow, int, error) {
	conditions := []string{"client_id = @client_id"}
	args := []any{
		clickhouse.Named("client_id", params.ClientID),
	}

	if params.ToolID != nil {
		conditions = append(conditions, "tool_id = @tool_id")
		args = append(args, clickhouse.Named("tool_id", *params.ToolID))
	}
	if params.UserID != nil {
		conditions = append(conditions, "user_id = @user_id")
		args = append(args, clickhouse.Named("user_id", *params.UserID))
	}
	if params.Department != nil {
		conditions = append(conditions, "department = @department")
		args = append(args, clickhouse.Named("department", *params.Department))
	}
	if params.Decision != nil {
		conditions = append(conditions, "decision = @decision")
		args = append(args, clickhouse.Named("decision", *params.Decision))
	}
	if params.Source != nil {
		conditions = append(conditions, "source_name = @source_name")
		args = append(args, clickhouse.Named("source_name", *params.Source))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM bridge_decisions WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListDecisions count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT "+decisionColumns+" FROM bridge_decisions WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListDecisions query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []DecisionRow
	for rows.Next() {
		var d DecisionRow
		if err := scanDecision(rows, &d); err != nil {
			return nil, 0, fmt.Errorf("ListDecisions scan: %w", err)
		}
		decisions = append(decisions, d)
	}

	return decisions, int(total), rows.Err()
}

// GetDecision returns a single decision by client ID and request ID, or nil if not found.
func (r *Reader) GetDecision(ctx context.Context, clientID, requestID string) (*DecisionRow, error) {
	row := r.conn.QueryRow(ctx,
		"SELECT "+decisionColumns+" FROM bridge_decisions "+
			"WHERE client_id = @client_id AND request_id = @request_id",
		clickhouse.Named("client_id", clientID),
		clickhouse.Named("request_id", requestID),
	)

	var d DecisionRow
	if err := scanDecision(row, &d); err != nil {
		// ClickHouse doesn't return sql.ErrNoRows, so check for empty result
		return nil, fmt.Errorf("GetDecision: %w", err)
	}
	if d.RequestID == "" {
		return nil, nil
	}
	return &d, nil
}

// SummaryStats holds aggregate decision counts.
type SummaryStats struct {
	TotalRequests int `json:"total_requests"`
	Allows        int `json:"allows"`
	Denies        int `json:"denies"`
	Errors        int `json:"errors"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// ReasonCount holds a deny reason and its count.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// SourceCount holds a source name and its count.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// ToolCount holds a tool_id and its count.
type ToolCount struct {
	ToolID string `json:"tool_id"`
	Count  int    `json:"count"`
}

// LatencyStats holds latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	DeniesOverTime     []TimeSeriesBucket `json:"denies_over_time"`
	TopDenyReasons     []ReasonCount      `json:"top_deny_reasons"`
	TopSources         []SourceCount      `json:"top_sources"`
	TopDeniedTools     []ToolCount        `json:"top_denied_tools"`
	LatencyPercentiles LatencyStats       `json:"latency_percentiles"`
}

// GetAnalytics returns aggregated analytics for a client over the given number of days.
func (r *Reader) GetAnalytics(ctx context.Context, clientID string, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	baseArgs := []any{
		clickhouse.Named("client_id", clientID),
		clickhouse.Named("range_start", rangeStart),
	}

	result := &AnalyticsResult{}

	// Summary counts
	var total, allows, denies, errs uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() as total, "+
			"countIf(decision = 'allow') as allows, "+
			"countIf(decision = 'deny') as denies, "+
			"countIf(decision = 'error') as errors "+
			"FROM bridge_decisions "+
			"WHERE client_id = @client_id AND timestamp >= @range_start",
		baseArgs...,
	).Scan(&total, &allows, &denies, &errs)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalRequests: int(total),
		Allows:        int(allows),
		Denies:        int(denies),
		Errors:        int(errs),
	}

	// Denies over time (hourly)
	dotRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM bridge_decisions "+
			"WHERE client_id = @client_id AND decision = 'deny' "+
			"AND timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics denies_over_time: %w", err)
	}
	defer func() { _ = dotRows.Close() }()
	for dotRows.Next() {
		var hour time.Time
		var count uint64
		if err := dotRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics denies_over_time scan: %w", err)
		}
		result.DeniesOverTime = append(result.DeniesOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	// Top deny reasons
	reasonRows, err := r.conn.Query(ctx,
		"SELECT deny_reason, count() as count "+
			"FROM bridge_decisions "+
			"WHERE client_id = @client_id AND decision = 'deny' "+
			"AND timestamp >= @range_start "+
			"GROUP BY deny_reason ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_deny_reasons: %w", err)
	}
	defer func() { _ = reasonRows.Close() }()
	for reasonRows.Next() {
		var reason string
		var count uint64
		if err := reasonRows.Scan(&reason, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_deny_reasons scan: %w", err)
		}
		result.TopDenyReasons = append(result.TopDenyReasons, ReasonCount{
			Reason: reason, Count: int(count),
		})
	}

	// Top sources by traffic
	srcRows, err := r.conn.Query(ctx,
		"SELECT source_name, count() as count "+
			"FROM bridge_decisions "+
			"WHERE client_id = @client_id AND source_name != '' "+
			"AND timestamp >= @range_start "+
			"GROUP BY source_name ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_sources: %w", err)
	}
	defer func() { _ = srcRows.Close() }()
	for srcRows.Next() {
		var src string
		var count uint64
		if err := srcRows.Scan(&src, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_sources scan: %w", err)
		}
		result.TopSources = append(result.TopSources, SourceCount{
			Source: src, Count: int(count),
		})
	}

	// Top denied tools
	toolRows, err := r.conn.Query(ctx,
		"SELECT tool_id, count() as count "+
			"FROM bridge_decisions "+
			"WHERE client_id = @client_id AND decision = 'deny' "+
			"AND tool_id != '' AND timestamp >= @range_start "+
			"GROUP BY tool_id ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_denied_tools: %w", err)
	}
	defer func() { _ = toolRows.Close() }()
	for toolRows.Next() {
		var toolID string
		var count uint64
		if err := toolRows.Scan(&toolID, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_denied_tools scan: %w", err)
		}
		result.TopDeniedTools = append(result.TopDeniedTools, ToolCount{
			ToolID: toolID, Count: int(count),
		})
	}

	// Latency percentiles (last 24h)
	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms) as p50, "+
			"quantile(0.95)(latency_ms) as p95, "+
			"quantile(0.99)(latency_ms) as p99 "+
			"FROM bridge_decisions "+
			"WHERE client_id = @client_id AND timestamp >= @day_start",
		clickhouse.Named("client_id", clientID),
		clickhouse.Named("day_start", dayStart),
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	// Ensure slices are non-nil for JSON serialization
	if result.DeniesOverTime == nil {
		result.DeniesOverTime = []TimeSeriesBucket{}
	}
	if result.TopDenyReasons == nil {
		result.TopDenyReasons = []ReasonCount{}
	}
	if result.TopSources == nil {
		result.TopSources = []SourceCount{}
	}
	if result.TopDeniedTools == nil {
		result.TopDeniedTools = []ToolCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
