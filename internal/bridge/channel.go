package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/eric0324/falcon-bridge/internal/authz"
	"github.com/eric0324/falcon-bridge/internal/executor"
	"github.com/eric0324/falcon-bridge/internal/registry"
	"github.com/eric0324/falcon-bridge/internal/resolver"
	"github.com/eric0324/falcon-bridge/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Identity is the verified caller a message is dispatched under. It comes
// from the trusted side (session token + client key), never from the
// message itself.
type Identity struct {
	ClientID   string
	ToolID     string
	UserID     string
	Department string
}

// Handler is the single trusted-side entry point for sandboxed code. Every
// capability is mediated here: validate, authorize, then (and only then)
// execute. Handlers are reentrant; concurrent dispatches share no mutable
// state beyond the executor's own pooling.
type Handler struct {
	authorizer *authz.Authorizer
	tools      registry.ToolProvider
	exec       executor.Executor
	writer     storage.EventWriter
	validator  *Validator
	logger     *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(
	authorizer *authz.Authorizer,
	tools registry.ToolProvider,
	exec executor.Executor,
	writer storage.EventWriter,
	validator *Validator,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		authorizer: authorizer,
		tools:      tools,
		exec:       exec,
		writer:     writer,
		validator:  validator,
		logger:     logger,
	}
}

// permissionDeniedMsg is the single user-facing denial string. Unknown
// sources and tables produce the same text as real denials so the sandbox
// cannot probe for existence.
func permissionDeniedMsg(reason authz.DenyReason) string {
	return "permission denied: " + string(reason)
}

// bridgeUnavailableMsg answers a request the trusted side could not check.
// It deliberately shares no prefix with denial text.
const bridgeUnavailableMsg = "bridge temporarily unavailable"

// Dispatch handles one raw message and returns at most one response.
//
//   - Malformed message: (nil, nil), silently dropped.
//   - Infrastructure failure: (nil, error), the transport must fail the
//     request distinctly from a denial.
//   - Everything else, including denials and executor errors: a Response
//     whose Error field carries the outcome.
//
// One call executes the underlying operation at most once; duplicate ids
// from the caller are the caller's bug, not deduplicated here.
func (h *Handler) Dispatch(ctx context.Context, raw []byte, id Identity) (*Response, error) {
	start := time.Now()

	msg, err := h.validator.Validate(raw)
	if err != nil {
		h.logger.Debug("dropping malformed bridge message",
			zap.String("client_id", id.ClientID),
			zap.Error(err),
		)
		return nil, nil
	}

	tool, err := h.tools.GetTool(ctx, id.ToolID)
	if err != nil {
		return nil, err
	}
	if tool == nil {
		// Unknown tool looks like an ordinary scope denial.
		resp := errorResponse(msg.ID, permissionDeniedMsg(authz.DenyUnscoped))
		h.writeEvent(msg, id, "deny", string(authz.DenyUnscoped), 0, false, start)
		return resp, nil
	}

	req := authz.Request{
		Operation:  authz.Operation(msg.Operation),
		DataSource: msg.DataSource,
		Table:      msg.Table,
		Columns:    msg.Columns,
		Params:     msg.Params,
		Payload:    msg.Payload,
	}

	decision, err := h.authorizer.Authorize(ctx, tool, id.Department, req)
	if err != nil {
		// Cannot check is not checked-and-denied.
		return nil, err
	}
	if !decision.Allowed {
		resp := errorResponse(msg.ID, permissionDeniedMsg(decision.Reason))
		h.writeEvent(msg, id, "deny", string(decision.Reason), 0, false, start)
		return resp, nil
	}

	result, execErr := h.execute(ctx, msg, decision)
	if execErr != nil {
		// Operation errors after a successful authorization pass through
		// untyped; they are not denials.
		resp := errorResponse(msg.ID, execErr.Error())
		h.writeEvent(msg, id, "error", "", uint32(len(decision.Columns)), true, start)
		return resp, nil
	}

	h.writeEvent(msg, id, "allow", "", uint32(len(decision.Columns)), false, start)
	return resultResponse(msg.ID, result), nil
}

func (h *Handler) execute(ctx context.Context, msg *Message, decision authz.Decision) (json.RawMessage, error) {
	if authz.Operation(msg.Operation) == authz.OpListSources {
		return marshalSourceList(decision.Sources)
	}
	if decision.Grant == nil {
		return nil, errors.New("no grant attached to allowed decision")
	}
	return h.exec.Execute(ctx, executor.Request{
		Operation:      msg.Operation,
		Source:         decision.Grant.Source,
		Table:          msg.Table,
		Columns:        decision.Columns,
		BlockedColumns: decision.BlockedColumns,
		Params:         msg.Params,
		Payload:        msg.Payload,
		Endpoint:       msg.Endpoint,
		SQL:            msg.SQL,
	})
}

// sourceSummary is the discovery shape returned for list-sources. It
// exposes the allowed surface only; connection config never leaves the
// trusted side.
type sourceSummary struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"displayName"`
	Type         string   `json:"type"`
	ReadTables   []string `json:"readTables"`
	WriteTables  []string `json:"writeTables"`
	DeleteTables []string `json:"deleteTables"`
}

func marshalSourceList(grants []resolver.SourceGrant) (json.RawMessage, error) {
	summaries := make([]sourceSummary, 0, len(grants))
	for _, g := range grants {
		summaries = append(summaries, sourceSummary{
			Name:         g.Source.Name,
			DisplayName:  g.Source.DisplayName,
			Type:         string(g.Source.Type),
			ReadTables:   g.ReadTables,
			WriteTables:  g.WriteTables,
			DeleteTables: g.DeleteTables,
		})
	}
	return json.Marshal(map[string]any{"sources": summaries})
}

func (h *Handler) writeEvent(msg *Message, id Identity, decision, denyReason string, served uint32, execErr bool, start time.Time) {
	h.writer.Write(&storage.DecisionEvent{
		RequestID:     uuid.New().String(),
		ClientID:      id.ClientID,
		Timestamp:     time.Now(),
		ToolID:        id.ToolID,
		UserID:        id.UserID,
		Department:    id.Department,
		Operation:     msg.Operation,
		SourceName:    msg.DataSource,
		TableName:     msg.Table,
		Decision:      decision,
		DenyReason:    denyReason,
		ColumnsAsked:  uint32(len(msg.Columns)),
		ColumnsServed: served,
		ExecutorError: execErr,
		LatencyMs:     float32(float64(time.Since(start)) / float64(time.Millisecond)),
	})
}

// Conn is a bidirectional raw-message transport to one sandboxed context.
// Receive blocks until a message arrives or the context ends.
type Conn interface {
	Receive(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, raw []byte) error
}

// Serve pumps messages from conn through Dispatch until the context ends
// or the transport fails. Dispatches run concurrently so one slow executor
// call does not stall other in-flight correlation ids. Transport errors
// leave in-flight requests unanswered; the caller owns its timeouts.
//
// Infrastructure failures are answered with bridgeUnavailableMsg so the
// sandbox can tell "cannot check" apart from a dropped malformed message.
// The text never carries the "permission denied" prefix.
func (h *Handler) Serve(ctx context.Context, conn Conn, id Identity) error {
	for {
		raw, err := conn.Receive(ctx)
		if err != nil {
			return err
		}

		go func(raw []byte) {
			resp, err := h.Dispatch(ctx, raw, id)
			if err != nil {
				h.logger.Error("bridge dispatch failed",
					zap.String("client_id", id.ClientID),
					zap.String("tool_id", id.ToolID),
					zap.Error(err),
				)
				// Dispatch only errors after validation, so raw carries a
				// usable correlation id.
				var msg Message
				if jsonErr := json.Unmarshal(raw, &msg); jsonErr != nil || msg.ID == "" {
					return
				}
				resp = errorResponse(msg.ID, bridgeUnavailableMsg)
			}
			if resp == nil {
				return
			}
			out, err := json.Marshal(resp)
			if err != nil {
				h.logger.Error("bridge response marshal failed", zap.Error(err))
				return
			}
			if err := conn.Send(ctx, out); err != nil {
				h.logger.Warn("bridge response send failed",
					zap.String("request_id", resp.ID),
					zap.Error(err),
				)
			}
		}(raw)
	}
}
