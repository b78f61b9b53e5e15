package flow

import "strings"

// RefKind distinguishes the three shapes a value reference can take inside
// tool args or loop collection expressions (§3).
type RefKind string

const (
	RefLiteral  RefKind = "literal"
	RefVariable RefKind = "variable"
	RefNode     RefKind = "reference"
)

// ValueRef is the compiled form of a tool-arg or collection value. Exactly
// one of Literal, VarName, or (NodeID, OutputName) applies, selected by Kind.
type ValueRef struct {
	Kind RefKind

	Literal any

	VarName string

	NodeID     string
	OutputName string
}

// ParseValueRef applies the argument-resolution grammar: a string
// beginning with "$" is split once on ".": two parts means a node
// reference ($nodeId.out), one part means a variable ($name); anything not
// starting with "$" is a literal, including non-string values.
func ParseValueRef(raw any) ValueRef {
	s, ok := raw.(string)
	if !ok || !strings.HasPrefix(s, "$") {
		return ValueRef{Kind: RefLiteral, Literal: raw}
	}

	path := s[1:]
	if idx := strings.Index(path, "."); idx >= 0 {
		return ValueRef{Kind: RefNode, NodeID: path[:idx], OutputName: path[idx+1:]}
	}
	return ValueRef{Kind: RefVariable, VarName: path}
}

// Resolve evaluates a ValueRef against the current scope and the set of
// node outputs produced so far along the interpreted path. Nested
// structures (maps, slices) are resolved recursively by ResolveArgs /
// resolveAny, not here.
func (v ValueRef) Resolve(scope *Scope, outputs map[string]any) (any, bool) {
	switch v.Kind {
	case RefLiteral:
		return v.Literal, true
	case RefVariable:
		return scope.Get(v.VarName)
	case RefNode:
		out, ok := outputs[v.NodeID]
		if !ok {
			return nil, false
		}
		if v.OutputName == "" || v.OutputName == "out" {
			return out, true
		}
		if m, ok := out.(map[string]any); ok {
			val, found := m[v.OutputName]
			return val, found
		}
		return nil, false
	default:
		return nil, false
	}
}

// ResolveArgs resolves every entry of a tool-arg mapping, recursing into
// nested maps/slices element by element (§4.4 argument resolution order).
func ResolveArgs(args map[string]any, scope *Scope, outputs map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(args))
	for key, raw := range args {
		val, err := resolveAny(raw, scope, outputs)
		if err != nil {
			return nil, err
		}
		resolved[key] = val
	}
	return resolved, nil
}

func resolveAny(raw any, scope *Scope, outputs map[string]any) (any, error) {
	switch v := raw.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			resolved, err := resolveAny(elem, scope, outputs)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			resolved, err := resolveAny(elem, scope, outputs)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		ref := ParseValueRef(raw)
		if ref.Kind == RefLiteral {
			return ref.Literal, nil
		}
		val, ok := ref.Resolve(scope, outputs)
		if !ok {
			name := ref.VarName
			if name == "" {
				name = ref.NodeID + "." + ref.OutputName
			}
			return nil, ExecutionErr(name, "undefined variable reference")
		}
		return val, nil
	}
}
