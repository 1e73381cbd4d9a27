package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRule is returned when a stored rule or source row cannot be
// turned into a validated record. Malformed rows are rejected at the load
// boundary, never passed into the resolver.
var ErrMalformedRule = errors.New("malformed permission record")

// parseNameList decodes a JSONB array of table/column names and validates
// every entry. Entries must be non-empty strings after trimming; anything
// else rejects the whole list.
func parseNameList(raw string, field string) ([]string, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var entries []any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("%w: %s is not a JSON array: %v", ErrMalformedRule, field, err)
	}

	names := make([]string, 0, len(entries))
	for i, e := range entries {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] is not a string", ErrMalformedRule, field, i)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("%w: %s[%d] is empty", ErrMalformedRule, field, i)
		}
		names = append(names, s)
	}
	return names, nil
}

// validateSourceType checks the type against the closed set.
func validateSourceType(t string) (SourceType, error) {
	st := SourceType(t)
	if !knownSourceTypes[st] {
		return "", fmt.Errorf("%w: unknown source type %q", ErrMalformedRule, t)
	}
	return st, nil
}

// IsKnownSourceType reports whether t names a supported source type. The
// admin API uses it to reject bad input before it reaches the database.
func IsKnownSourceType(t string) bool {
	return knownSourceTypes[SourceType(t)]
}

// IsValidVisibility reports whether v is a recognized tool visibility.
func IsValidVisibility(v string) bool {
	_, err := validateVisibility(v)
	return err == nil
}

// validateVisibility checks a tool visibility value.
func validateVisibility(v string) (Visibility, error) {
	switch Visibility(v) {
	case VisibilityPrivate, VisibilityDepartment, VisibilityCompany, VisibilityPublic:
		return Visibility(v), nil
	default:
		return "", fmt.Errorf("%w: unknown visibility %q", ErrMalformedRule, v)
	}
}
