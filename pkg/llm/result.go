package llm

import (
	"encoding/json"
	"strings"
)

// ResultKind distinguishes how a model reply was interpreted.
type ResultKind int

const (
	// Structured means the reply carried the requested JSON object.
	Structured ResultKind = iota
	// Unstructured means JSON was not requested and the raw text stands.
	Unstructured
	// ParseFailed means JSON was requested but could not be recovered.
	// Callers must treat this as a rejection, never as an acceptance.
	ParseFailed
)

// Result is a tagged interpretation of one model reply.
type Result struct {
	Kind  ResultKind
	JSON  json.RawMessage
	Text  string
	Usage TokenUsage
	Model string
}

// Interpret classifies a model reply. When expectJSON is set it recovers
// the first JSON object from the text, tolerating markdown fences and
// surrounding prose.
func Interpret(resp *MessageResponse, expectJSON bool) Result {
	r := Result{Text: resp.Text, Usage: resp.Usage, Model: resp.Model}
	if !expectJSON {
		r.Kind = Unstructured
		return r
	}

	raw := extractJSONObject(resp.Text)
	if raw == "" || !json.Valid([]byte(raw)) {
		r.Kind = ParseFailed
		return r
	}
	r.Kind = Structured
	r.JSON = json.RawMessage(raw)
	return r
}

// extractJSONObject returns the first balanced {...} span in s, or "".
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
