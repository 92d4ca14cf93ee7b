package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls a JSON document out of model output. It prefers the
// first fenced code block, then falls back to scanning for a balanced brace
// or bracket span. Returns false when nothing parseable is found.
func ExtractJSON(text string) (json.RawMessage, bool) {
	if candidate, ok := extractFencedBlock(text); ok {
		if raw, ok := tryParse(candidate); ok {
			return raw, true
		}
	}
	if candidate, ok := extractBraceSpan(text); ok {
		if raw, ok := tryParse(candidate); ok {
			return raw, true
		}
	}
	// The whole reply may already be bare JSON.
	return tryParse(text)
}

func tryParse(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}

// extractFencedBlock returns the body of the first ``` fence, tolerating a
// language tag on the opening line.
func extractFencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		// A language tag like "json" never contains braces.
		if !strings.ContainsAny(firstLine, "{[") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// extractBraceSpan finds the first balanced {...} or [...] span, ignoring
// braces inside string literals.
func extractBraceSpan(text string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
