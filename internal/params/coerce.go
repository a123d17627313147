// Package params converts loosely typed, user-entered parameter values into
// the typed values sent to the remote services.
package params

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var intLiteral = regexp.MustCompile(`^-?[0-9]+$`)

// Coerce returns the typed form of a raw parameter value.
//
// Integer literals become int, parenthesised tuples such as "(3, 384, 384)"
// become []any of numbers, and everything else is returned unchanged. Coerce
// never fails: text that looks like a tuple but does not parse is returned as
// the original string. Values that are not strings are already typed and are
// passed through, so Coerce(Coerce(v)) equals Coerce(v).
func Coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}

	trimmed := strings.TrimSpace(s)

	if intLiteral.MatchString(trimmed) {
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			// Out of int range.
			return s
		}
		return n
	}

	if strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		if seq, ok := parseTuple(trimmed); ok {
			return seq
		}
	}

	return s
}

// CoerceAll coerces every value of a parameter map into a new map.
func CoerceAll(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = Coerce(v)
	}
	return out
}

// parseTuple rewrites tuple delimiters into a JSON array literal and decodes it.
// Only numbers and nested tuples of numbers are accepted.
func parseTuple(s string) ([]any, bool) {
	literal := strings.NewReplacer("(", "[", ")", "]").Replace(s)

	dec := json.NewDecoder(bytes.NewReader([]byte(literal)))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}

	return normalizeSequence(raw)
}

func normalizeSequence(raw []any) ([]any, bool) {
	out := make([]any, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case json.Number:
			if n, err := strconv.Atoi(v.String()); err == nil {
				out = append(out, n)
				continue
			}
			f, err := v.Float64()
			if err != nil {
				return nil, false
			}
			out = append(out, f)
		case []any:
			nested, ok := normalizeSequence(v)
			if !ok {
				return nil, false
			}
			out = append(out, nested)
		default:
			return nil, false
		}
	}
	return out, true
}
