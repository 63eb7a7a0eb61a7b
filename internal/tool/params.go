package tool

import (
	"encoding/json"

	"toolcall/internal/domain"
)

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
}

// ToolParameters builds a JSON Schema "parameters" object for a tool. Every
// tool tolerates missing parameters, so nothing is listed as required.
func ToolParameters(properties map[string]Param) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[name] = prop
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

// InputSchema converts a descriptor's informational type tags to a JSON
// Schema object. No parameter is marked required.
func InputSchema(d domain.ToolDescriptor) map[string]any {
	props := make(map[string]Param, len(d.Parameters))
	for name, typ := range d.Parameters {
		props[name] = Param{Type: typ}
	}
	return ToolParameters(props)
}

func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgsStringDefault is ArgsString with a fallback for absent or empty values.
func ArgsStringDefault(args map[string]any, key, def string) string {
	if s := ArgsString(args, key); s != "" {
		return s
	}
	return def
}

func ensureContext(tc domain.Context) domain.Context {
	if tc == nil {
		return make(domain.Context)
	}
	return tc
}
