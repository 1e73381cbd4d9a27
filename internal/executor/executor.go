// Package executor performs the actual query or call against an underlying
// system once the bridge authorizer has allowed it. Executors trust the
// grant-derived column filters they receive and apply them mechanically.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eric0324/falcon-bridge/internal/registry"
)

// ErrUnsupported is returned when no executor handles a source type or
// operation. It reaches the sandbox as a plain error string, after
// authorization already succeeded.
var ErrUnsupported = errors.New("unsupported by executor")

// Request is an authorized operation handed to an executor. Columns is the
// effective read projection (empty = all columns); BlockedColumns must be
// stripped from results and schema when no projection was given.
type Request struct {
	Operation      string
	Source         registry.DataSource
	Table          string
	Columns        []string
	BlockedColumns []string
	Params         map[string]any
	Payload        map[string]any
	Endpoint       string
	SQL            string
}

// Executor runs one authorized request and returns a JSON result.
type Executor interface {
	Execute(ctx context.Context, req Request) (json.RawMessage, error)
}

// Dispatcher routes requests to the executor registered for the source type.
type Dispatcher struct {
	byType map[registry.SourceType]Executor
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{byType: make(map[registry.SourceType]Executor)}
}

// Register binds an executor to a source type.
func (d *Dispatcher) Register(t registry.SourceType, e Executor) {
	d.byType[t] = e
}

// Execute implements Executor by source-type dispatch.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	e, ok := d.byType[req.Source.Type]
	if !ok {
		return nil, fmt.Errorf("%w: no executor for source type %q", ErrUnsupported, req.Source.Type)
	}
	return e.Execute(ctx, req)
}

// stripBlocked removes blocked columns from a row map in place.
func stripBlocked(row map[string]any, blocked []string) {
	for _, col := range blocked {
		delete(row, col)
	}
}
