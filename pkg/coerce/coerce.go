// Package coerce extracts JSON values from free-form model output.
//
// Hosted models wrap JSON in markdown fences, preambles, and trailing
// commentary. Extraction never fails: when no parseable JSON can be found
// the result is a sentinel carrying the raw text and a parse-error flag,
// which downstream stages consume as best-effort data.
package coerce

import (
	"encoding/json"
	"strings"
)

// Sentinel map keys used when parsing fails.
const (
	KeyRaw        = "raw"
	KeyParseError = "parse_error"
)

// Value is the result of coercing free-form text into JSON.
type Value struct {
	Parsed     any    // Decoded JSON value when ParseError is false
	Raw        string // Candidate text that was parsed (or failed to)
	ParseError bool
}

// Extract locates and parses one JSON value inside text.
//
// Extraction policy, in order:
//  1. the content of a fenced code block, preferring one tagged as json;
//  2. the substring from the first '{' or '[' to the matching last '}' or ']';
//  3. the trimmed text verbatim.
//
// Extract never returns an error: on parse failure the Value carries the
// raw text with ParseError set.
func Extract(text string) Value {
	candidate := strings.TrimSpace(text)

	if fenced, ok := stripFences(candidate); ok {
		candidate = fenced
	} else if inner, ok := outermostJSON(candidate); ok {
		candidate = inner
	}

	var parsed any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return Value{Raw: strings.TrimSpace(text), ParseError: true}
	}
	return Value{Parsed: parsed, Raw: candidate}
}

// Object coerces text into a JSON object. Non-object values (arrays,
// scalars) and parse failures both degrade to the sentinel shape
// {"raw": <text>, "parse_error": true}.
func Object(text string) map[string]any {
	v := Extract(text)
	if !v.ParseError {
		if obj, ok := v.Parsed.(map[string]any); ok {
			return obj
		}
	}
	return map[string]any{KeyRaw: v.Raw, KeyParseError: true}
}

// IsSentinel reports whether an object is the parse-failure sentinel.
func IsSentinel(obj map[string]any) bool {
	flag, ok := obj[KeyParseError].(bool)
	return ok && flag
}

// stripFences returns the body of a fenced code block in text, preferring a
// block tagged as json. Returns false when text contains no complete fence.
func stripFences(text string) (string, bool) {
	if !strings.Contains(text, "```") {
		return "", false
	}

	var firstBlock string
	var haveFirst bool

	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			break
		}
		rest = rest[start+3:]
		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}
		block := rest[:end]
		rest = rest[end+3:]

		// The info string is the remainder of the opening fence line.
		tag := ""
		body := block
		if nl := strings.IndexByte(block, '\n'); nl >= 0 {
			tag = strings.TrimSpace(block[:nl])
			body = block[nl+1:]
		} else {
			// Single-line fence: ```json {...}```
			if after, ok := strings.CutPrefix(strings.TrimSpace(block), "json"); ok {
				tag = "json"
				body = after
			}
		}

		body = strings.TrimSpace(body)
		if strings.EqualFold(tag, "json") {
			return body, true
		}
		if !haveFirst {
			firstBlock = body
			haveFirst = true
		}
	}

	return firstBlock, haveFirst
}

// outermostJSON returns the substring from the first '{' or '[' to the last
// matching '}' or ']'.
func outermostJSON(text string) (string, bool) {
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')

	start, closer := -1, byte(0)
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		start, closer = objStart, '}'
	case arrStart >= 0:
		start, closer = arrStart, ']'
	default:
		return "", false
	}

	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}
