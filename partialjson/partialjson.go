// Package partialjson implements best-effort JSON completion: tool-call
// arguments arrive as incomplete JSON fragments while streaming, and every
// adapter needs a way to turn "best effort so far" into a usable object
// without ever erroring out mid-stream.
package partialjson

import (
	"encoding/json"
	"strings"
)

// Parse attempts a strict decode first, then falls back to closing any open
// strings/arrays/objects in buffer and retrying. It never returns an error;
// on irrecoverable input it returns an empty map.
func Parse(buffer string) any {
	if strings.TrimSpace(buffer) == "" {
		return map[string]any{}
	}

	var strict any
	if err := json.Unmarshal([]byte(buffer), &strict); err == nil {
		return strict
	}

	completed := complete(buffer)
	var value any
	if err := json.Unmarshal([]byte(completed), &value); err == nil {
		return value
	}
	return map[string]any{}
}

// complete appends the minimal suffix needed to balance buffer's open
// strings, arrays, and objects, tracking escape sequences so an escaped quote
// doesn't falsely end a string.
func complete(buffer string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(buffer); i++ {
		c := buffer[i]
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
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var out strings.Builder
	out.WriteString(buffer)

	// A dangling string must be closed before containers, and a trailing
	// comma/colon would still fail to parse; trim that delimiter rather than
	// try to guess a value for it. A dangling key or bare token is not trimmed.
	trimmed := buffer
	if inString {
		out.WriteByte('"')
		trimmed = out.String()
		out.Reset()
		out.WriteString(trimmed)
	}

	result := out.String()
	result = trimDanglingToken(result)

	for i := len(stack) - 1; i >= 0; i-- {
		result += string(stack[i])
	}
	return result
}

// trimDanglingToken removes a trailing "," or ":" so the completed buffer
// does not fail to parse on a stray delimiter. Any other trailing token (a
// true/false/null/number prefix, or an object key with no value) is left in
// place.
func trimDanglingToken(s string) string {
	trimmedRight := strings.TrimRight(s, " \t\r\n")
	if trimmedRight == "" {
		return s
	}
	switch trimmedRight[len(trimmedRight)-1] {
	case ',', ':':
		return trimmedRight[:len(trimmedRight)-1]
	}
	return s
}
