// Package tools defines the tool schema registry used by the agent loop.
//
// Every tool the reasoning model may call is declared here as a [Definition]:
// a name, a description, and a typed parameter schema with bounds, enums, and
// defaults. The registry binds each definition to its handler and applies
// strict validation before any adapter sees the arguments — the model's
// argument object is never passed through unvalidated, and a misspelt field
// name (the classic "q" instead of "query") is rejected rather than silently
// dropped.
package tools

import (
	"fmt"
	"sort"
	"strings"
)

// FieldType is the declared semantic type of one tool parameter.
type FieldType string

const (
	// FieldString is a free-text parameter, optionally bounded by MinLen /
	// MaxLen and restricted by Enum.
	FieldString FieldType = "string"

	// FieldInt is an integer parameter, optionally bounded by Min / Max.
	// JSON numbers with a fractional part are rejected, not truncated.
	FieldInt FieldType = "integer"
)

// FieldSpec declares one parameter of a tool.
type FieldSpec struct {
	// Type is the parameter's semantic type.
	Type FieldType

	// Description is surfaced to the model in the tool's JSON Schema.
	Description string

	// Required marks the parameter as mandatory. Required fields have no
	// default.
	Required bool

	// Default is substituted when an optional field is omitted. For
	// FieldString it must be a string, for FieldInt an int.
	Default any

	// MinLen / MaxLen bound string length. MaxLen 0 means unbounded.
	MinLen, MaxLen int

	// Min / Max bound integer values. Nil means unbounded on that side.
	Min, Max *int

	// Enum lists the legal values of a string field. Empty means any value.
	Enum []string
}

// IntRange is a convenience for building Min/Max pointers inline.
func IntRange(min, max int) (*int, *int) {
	return &min, &max
}

// Definition declares one tool: its identity and its parameter schema.
type Definition struct {
	// Name is the exact tool name offered to the model.
	Name string

	// Description tells the model when to pick this tool.
	Description string

	// Params maps field name to its spec. Field names are matched exactly.
	Params map[string]FieldSpec
}

// JSONSchema renders the parameter schema in the JSON-Schema object shape
// expected by llm.ToolDefinition.Parameters. Properties are emitted in
// sorted field order so the rendered schema is deterministic.
func (d Definition) JSONSchema() map[string]any {
	properties := make(map[string]any, len(d.Params))
	var required []string

	for _, name := range sortedFieldNames(d.Params) {
		spec := d.Params[name]
		prop := map[string]any{
			"type":        string(spec.Type),
			"description": spec.Description,
		}
		if len(spec.Enum) > 0 {
			vals := make([]any, len(spec.Enum))
			for i, v := range spec.Enum {
				vals[i] = v
			}
			prop["enum"] = vals
		}
		if spec.Type == FieldString {
			if spec.MinLen > 0 {
				prop["minLength"] = spec.MinLen
			}
			if spec.MaxLen > 0 {
				prop["maxLength"] = spec.MaxLen
			}
		}
		if spec.Type == FieldInt {
			if spec.Min != nil {
				prop["minimum"] = *spec.Min
			}
			if spec.Max != nil {
				prop["maximum"] = *spec.Max
			}
		}
		if spec.Default != nil {
			prop["default"] = spec.Default
		}
		properties[name] = prop

		if spec.Required {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Args holds validated, defaulted tool arguments. Values are only ever of
// the Go types matching their declared [FieldType] (string or int).
type Args map[string]any

// String returns the value of a string field, or "" when absent.
func (a Args) String(field string) string {
	v, _ := a[field].(string)
	return v
}

// Int returns the value of an integer field, or 0 when absent.
func (a Args) Int(field string) int {
	v, _ := a[field].(int)
	return v
}

// FieldViolation describes one failed constraint on one field.
type FieldViolation struct {
	// Field is the offending field name.
	Field string

	// Reason is a human-readable description of the violated constraint.
	Reason string
}

// ValidationError carries every constraint violation found in one argument
// object. The model sees the full list as tool-result text, which gives it
// complete diagnostics for self-correction on a later turn.
type ValidationError struct {
	// Tool is the tool whose arguments failed validation.
	Tool string

	// Violations lists every failed field, in deterministic field order.
	Violations []FieldViolation
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid arguments for tool %q:", e.Tool)
	for _, v := range e.Violations {
		fmt.Fprintf(&sb, " %s: %s;", v.Field, v.Reason)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// Validate checks raw against the definition's schema and returns the
// validated, defaulted arguments.
//
// Validation is strict: unknown field names are rejected (never renamed or
// dropped), out-of-bounds values are rejected (never clamped), and every
// violation in the argument object is reported, not just the first.
func (d Definition) Validate(raw map[string]any) (Args, *ValidationError) {
	var violations []FieldViolation

	// Unknown fields first, in sorted order for deterministic output.
	for _, name := range sortedArgNames(raw) {
		if _, ok := d.Params[name]; !ok {
			violations = append(violations, FieldViolation{
				Field:  name,
				Reason: "unknown field",
			})
		}
	}

	args := make(Args, len(d.Params))
	for _, name := range sortedFieldNames(d.Params) {
		spec := d.Params[name]
		rawVal, present := raw[name]

		if !present {
			if spec.Required {
				violations = append(violations, FieldViolation{Field: name, Reason: "required field is missing"})
				continue
			}
			if spec.Default != nil {
				args[name] = spec.Default
			}
			continue
		}

		val, violation := checkField(name, spec, rawVal)
		if violation != nil {
			violations = append(violations, *violation)
			continue
		}
		args[name] = val
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Tool: d.Name, Violations: violations}
	}
	return args, nil
}

// checkField validates a single present value against its spec and converts
// it to the canonical Go type.
func checkField(name string, spec FieldSpec, rawVal any) (any, *FieldViolation) {
	switch spec.Type {
	case FieldString:
		s, ok := rawVal.(string)
		if !ok {
			return nil, &FieldViolation{Field: name, Reason: fmt.Sprintf("expected string, got %T", rawVal)}
		}
		if len(s) < spec.MinLen {
			return nil, &FieldViolation{Field: name, Reason: fmt.Sprintf("length %d is below minimum %d", len(s), spec.MinLen)}
		}
		if spec.MaxLen > 0 && len(s) > spec.MaxLen {
			return nil, &FieldViolation{Field: name, Reason: fmt.Sprintf("length %d exceeds maximum %d", len(s), spec.MaxLen)}
		}
		if len(spec.Enum) > 0 && !contains(spec.Enum, s) {
			return nil, &FieldViolation{Field: name, Reason: fmt.Sprintf("%q is not one of [%s]", s, strings.Join(spec.Enum, ", "))}
		}
		return s, nil

	case FieldInt:
		n, ok := asInt(rawVal)
		if !ok {
			return nil, &FieldViolation{Field: name, Reason: fmt.Sprintf("expected integer, got %v", rawVal)}
		}
		if spec.Min != nil && n < *spec.Min {
			return nil, &FieldViolation{Field: name, Reason: fmt.Sprintf("%d is below minimum %d", n, *spec.Min)}
		}
		if spec.Max != nil && n > *spec.Max {
			return nil, &FieldViolation{Field: name, Reason: fmt.Sprintf("%d exceeds maximum %d", n, *spec.Max)}
		}
		return n, nil

	default:
		return nil, &FieldViolation{Field: name, Reason: fmt.Sprintf("unsupported field type %q", spec.Type)}
	}
}

// asInt accepts the numeric shapes a JSON decoder can produce and reports
// whether the value is an exact integer.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func sortedFieldNames(params map[string]FieldSpec) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedArgNames(raw map[string]any) []string {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
