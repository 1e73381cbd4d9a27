package executor

import (
	"context"
	"encoding/json"
)

// StaticExecutor returns a canned result for every request. Used in tests
// and as a stand-in for source types whose real executor is not configured.
type StaticExecutor struct {
	Result json.RawMessage
	Err    error

	// Last records the most recent request for assertions.
	Last *Request
}

// Execute implements Executor.
func (e *StaticExecutor) Execute(_ context.Context, req Request) (json.RawMessage, error) {
	e.Last = &req
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Result == nil {
		return json.RawMessage(`{}`), nil
	}
	return e.Result, nil
}
