package llm

import (
	"strings"
)

// NormalizeSchema returns a copy of the schema with every $ref inlined from
// $defs/definitions and additionalProperties forced to false on every object
// node that lacks it or sets it to true. The function is pure and idempotent.
func NormalizeSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	defs := collectDefs(schema)
	out := normalizeNode(schema, defs, 0)
	m, _ := out.(map[string]any)
	// Inlined refs make the definition blocks redundant.
	delete(m, "$defs")
	delete(m, "definitions")
	return m
}

func collectDefs(schema map[string]any) map[string]map[string]any {
	defs := make(map[string]map[string]any)
	for _, key := range []string{"$defs", "definitions"} {
		if block, ok := schema[key].(map[string]any); ok {
			for name, def := range block {
				if dm, ok := def.(map[string]any); ok {
					defs["#/"+key+"/"+name] = dm
				}
			}
		}
	}
	return defs
}

// maxRefDepth bounds recursion for self-referential schemas.
const maxRefDepth = 16

func normalizeNode(node any, defs map[string]map[string]any, depth int) any {
	switch n := node.(type) {
	case map[string]any:
		if ref, ok := n["$ref"].(string); ok && depth < maxRefDepth {
			if target, found := resolveRef(ref, defs); found {
				return normalizeNode(target, defs, depth+1)
			}
		}
		out := make(map[string]any, len(n))
		for k, v := range n {
			if k == "$ref" {
				continue
			}
			out[k] = normalizeNode(v, defs, depth)
		}
		if isObjectSchema(out) {
			if ap, ok := out["additionalProperties"].(bool); !ok || ap {
				out["additionalProperties"] = false
			}
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			out[i] = normalizeNode(v, defs, depth)
		}
		return out
	default:
		return n
	}
}

func resolveRef(ref string, defs map[string]map[string]any) (map[string]any, bool) {
	if target, ok := defs[ref]; ok {
		return target, true
	}
	// Tolerate refs written with a different prefix style.
	for key, target := range defs {
		if strings.HasSuffix(key, ref[strings.LastIndex(ref, "/"):]) {
			return target, true
		}
	}
	return nil, false
}

func isObjectSchema(node map[string]any) bool {
	if t, ok := node["type"].(string); ok {
		return t == "object"
	}
	_, hasProps := node["properties"]
	return hasProps
}

// ExampleFromSchema synthesizes a deterministic example instance from a
// normalized schema. Strings become placeholder text, numbers 123, booleans
// true, arrays empty, objects recurse into their properties.
func ExampleFromSchema(schema map[string]any) any {
	if schema == nil {
		return nil
	}
	switch t, _ := schema["type"].(string); t {
	case "string":
		return "placeholder"
	case "number", "integer":
		return 123
	case "boolean":
		return true
	case "array":
		return []any{}
	case "object":
		return exampleObject(schema)
	default:
		if _, ok := schema["properties"]; ok {
			return exampleObject(schema)
		}
		return nil
	}
}

func exampleObject(schema map[string]any) map[string]any {
	out := make(map[string]any)
	props, _ := schema["properties"].(map[string]any)
	for name, prop := range props {
		pm, ok := prop.(map[string]any)
		if !ok {
			continue
		}
		out[name] = ExampleFromSchema(pm)
	}
	return out
}
