// Package prompt renders role-delimited prompt templates into chat messages.
// Templates interpolate {{var.path}} bindings, support {{#if path}} blocks
// and a join filter for list values.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/loreforge/loreforge/internal/llm"
)

// roleDelimiter splits a template into per-role segments.
var roleDelimiter = regexp.MustCompile(`(?m)^---\s*role:\s*(system|user|assistant)\s*$`)

// placeholder matches {{path}} and {{path | join ", "}}.
var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*(?:\|\s*join\s+"([^"]*)"\s*)?\}\}`)

// Render expands the template with the given bindings and splits it into
// messages. Without role delimiters the whole text becomes one user message.
// Messages that render empty are dropped.
func Render(template string, vars map[string]any) ([]llm.Message, error) {
	expanded, err := expand(template, vars)
	if err != nil {
		return nil, err
	}

	matches := roleDelimiter.FindAllStringSubmatchIndex(expanded, -1)
	if len(matches) == 0 {
		content := strings.TrimSpace(expanded)
		if content == "" {
			return nil, nil
		}
		return []llm.Message{{Role: llm.RoleUser, Content: content}}, nil
	}

	var messages []llm.Message
	for i, m := range matches {
		role := expanded[m[2]:m[3]]
		start := m[1]
		end := len(expanded)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		content := strings.TrimSpace(expanded[start:end])
		if content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: content})
	}
	return messages, nil
}

// expand resolves conditionals first, then placeholders.
func expand(template string, vars map[string]any) (string, error) {
	out, err := expandConditionals(template, vars)
	if err != nil {
		return "", err
	}
	return placeholder.ReplaceAllStringFunc(out, func(match string) string {
		groups := placeholder.FindStringSubmatch(match)
		value := lookup(vars, groups[1])
		if groups[2] != "" || strings.Contains(match, "join") {
			return joinValue(value, groups[2])
		}
		return stringify(value)
	}), nil
}

// expandConditionals handles {{#if path}}...{{/if}} blocks, innermost last,
// with proper nesting.
func expandConditionals(template string, vars map[string]any) (string, error) {
	const openTag = "{{#if"
	const closeTag = "{{/if}}"

	for {
		start := strings.Index(template, openTag)
		if start < 0 {
			return template, nil
		}
		condEnd := strings.Index(template[start:], "}}")
		if condEnd < 0 {
			return "", fmt.Errorf("unterminated {{#if}} tag")
		}
		condEnd += start
		path := strings.TrimSpace(template[start+len(openTag) : condEnd])

		// Find the matching close tag, counting nested opens.
		depth := 1
		pos := condEnd + 2
		bodyEnd := -1
		for pos < len(template) {
			nextOpen := strings.Index(template[pos:], openTag)
			nextClose := strings.Index(template[pos:], closeTag)
			if nextClose < 0 {
				return "", fmt.Errorf("missing {{/if}} for %q", path)
			}
			if nextOpen >= 0 && nextOpen < nextClose {
				depth++
				pos += nextOpen + len(openTag)
				continue
			}
			depth--
			if depth == 0 {
				bodyEnd = pos + nextClose
				break
			}
			pos += nextClose + len(closeTag)
		}
		if bodyEnd < 0 {
			return "", fmt.Errorf("missing {{/if}} for %q", path)
		}

		body := template[condEnd+2 : bodyEnd]
		var replacement string
		if truthy(lookup(vars, path)) {
			inner, err := expandConditionals(body, vars)
			if err != nil {
				return "", err
			}
			replacement = inner
		}
		template = template[:start] + replacement + template[bodyEnd+len(closeTag):]
	}
}

// lookup walks a dotted path through nested maps. Missing paths yield nil.
func lookup(vars map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = vars
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return strings.TrimSpace(val) != ""
	case []any:
		return len(val) > 0
	case []string:
		return len(val) > 0
	case int:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// Bindings decoded from JSON carry numbers as float64.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func joinValue(v any, sep string) string {
	if sep == "" {
		sep = ", "
	}
	switch val := v.(type) {
	case []string:
		return strings.Join(val, sep)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, sep)
	default:
		return stringify(v)
	}
}
