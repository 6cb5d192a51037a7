// Package schema defines closed JSON payload shapes.
//
// A single definition serves two purposes: it renders to a JSON Schema
// document that can be attached to a completion request as a structured
// output constraint, and it validates raw JSON received from untrusted
// sources (request bodies, model output). Objects are always closed:
// every property is required and unknown properties are rejected.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalid is matched by every *ValidationError.
var ErrInvalid = errors.New("schema validation failed")

// ValidationError describes the first violation found in a value.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Is reports whether target is ErrInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Schema is a payload shape.
type Schema interface {
	// JSONSchema returns the JSON Schema document for this shape.
	JSONSchema() map[string]any
	validate(path string, raw json.RawMessage) error
}

// Validate checks raw against s. The returned error, if any, is a *ValidationError.
func Validate(s Schema, raw []byte) error {
	return s.validate("$", raw)
}

// Number is a finite JSON number within [Min, Max].
type Number struct {
	Description string
	Min         float64
	Max         float64
}

// JSONSchema implements Schema.
func (n Number) JSONSchema() map[string]any {
	doc := map[string]any{
		"type":    "number",
		"minimum": n.Min,
		"maximum": n.Max,
	}
	if n.Description != "" {
		doc["description"] = n.Description
	}
	return doc
}

func (n Number) validate(path string, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return &ValidationError{Path: path, Reason: "missing value"}
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("expected number, got %s", kindOf(raw))}
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return &ValidationError{Path: path, Reason: "malformed number"}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Path: path, Reason: "number is not finite"}
	}
	if v < n.Min || v > n.Max {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("%g is outside [%g, %g]", v, n.Min, n.Max)}
	}
	return nil
}

// String is a JSON string.
type String struct {
	Description string
}

// JSONSchema implements Schema.
func (s String) JSONSchema() map[string]any {
	doc := map[string]any{"type": "string"}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	return doc
}

func (s String) validate(path string, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return &ValidationError{Path: path, Reason: "missing value"}
	}
	if raw[0] != '"' {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("expected string, got %s", kindOf(raw))}
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return &ValidationError{Path: path, Reason: "malformed string"}
	}
	return nil
}

// Property is a named member of an Object.
type Property struct {
	Name   string
	Schema Schema
}

// Object is a closed JSON object: all properties required, no others allowed.
type Object struct {
	Description string
	Properties  []Property
}

// JSONSchema implements Schema.
func (o Object) JSONSchema() map[string]any {
	props := make(map[string]any, len(o.Properties))
	required := make([]string, 0, len(o.Properties))
	for _, p := range o.Properties {
		props[p.Name] = p.Schema.JSONSchema()
		required = append(required, p.Name)
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
	if o.Description != "" {
		doc["description"] = o.Description
	}
	return doc
}

func (o Object) validate(path string, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return &ValidationError{Path: path, Reason: "missing value"}
	}
	if raw[0] != '{' {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("expected object, got %s", kindOf(raw))}
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return &ValidationError{Path: path, Reason: "malformed object"}
	}

	known := make(map[string]struct{}, len(o.Properties))
	for _, p := range o.Properties {
		known[p.Name] = struct{}{}
	}
	var extra []string
	for name := range members {
		if _, ok := known[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return &ValidationError{Path: path, Reason: fmt.Sprintf("unexpected property %q", extra[0])}
	}

	for _, p := range o.Properties {
		child := path + "." + p.Name
		value, ok := members[p.Name]
		if !ok {
			return &ValidationError{Path: child, Reason: "required property is missing"}
		}
		if err := p.Schema.validate(child, value); err != nil {
			return err
		}
	}
	return nil
}

func kindOf(raw json.RawMessage) string {
	switch raw[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "invalid JSON"
	}
}
