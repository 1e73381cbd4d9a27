// Package bridge carries requests from untrusted sandboxed tool code to the
// authorizer and executor, and responses back, correlated by request id.
// The message shapes here are the one bit-exact contract shared with the
// sandbox runtime.
package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	KindRequest  = "bridge-request"
	KindResponse = "bridge-response"
)

// Message is a bridge request from sandboxed code. Field presence depends
// on the operation and source type: table/columns for relational reads,
// endpoint/payload for REST calls. The id is caller-generated and opaque.
type Message struct {
	Kind       string         `json:"kind"`
	ID         string         `json:"id"`
	Operation  string         `json:"operation"`
	DataSource string         `json:"dataSource,omitempty"`
	Table      string         `json:"table,omitempty"`
	Columns    []string       `json:"columns,omitempty"`
	SQL        string         `json:"sql,omitempty"`
	Endpoint   string         `json:"endpoint,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Response carries exactly one of Result or Error back to the sandbox.
type Response struct {
	Kind   string          `json:"kind"`
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *string         `json:"error,omitempty"`
}

func resultResponse(id string, result json.RawMessage) *Response {
	return &Response{Kind: KindResponse, ID: id, Result: result}
}

func errorResponse(id, msg string) *Response {
	return &Response{Kind: KindResponse, ID: id, Error: &msg}
}

// ErrMalformed marks a message that failed structural validation. The
// channel drops such messages without answering: replying to garbage would
// turn the validator into an oracle for an untrusted sender.
var ErrMalformed = errors.New("malformed bridge message")

// requestSchema structurally validates incoming messages before dispatch.
// Extra fields are tolerated for forward compatibility; wrong types and
// missing required fields are not.
const requestSchema = `{
	"type": "object",
	"required": ["kind", "id", "operation"],
	"properties": {
		"kind": {"const": "bridge-request"},
		"id": {"type": "string", "minLength": 1, "maxLength": 128},
		"operation": {"enum": ["read", "write", "delete", "list-schema", "list-sources"]},
		"dataSource": {"type": "string"},
		"table": {"type": "string"},
		"columns": {"type": "array", "items": {"type": "string"}},
		"sql": {"type": "string"},
		"endpoint": {"type": "string"},
		"params": {"type": "object"},
		"payload": {"type": "object"}
	}
}`

// Validator checks raw bridge messages against the request schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the request schema once.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("NewValidator: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("bridge-request.json", doc); err != nil {
		return nil, fmt.Errorf("NewValidator: %w", err)
	}
	sch, err := c.Compile("bridge-request.json")
	if err != nil {
		return nil, fmt.Errorf("NewValidator: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// Validate parses raw bytes into a Message, or ErrMalformed.
func (v *Validator) Validate(raw []byte) (*Message, error) {
	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := v.schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// Non-discovery operations must name their target.
	if m.Operation != "list-sources" && m.DataSource == "" {
		return nil, fmt.Errorf("%w: dataSource required for %s", ErrMalformed, m.Operation)
	}
	return &m, nil
}
