package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// locateJSON finds the first balanced JSON object or array embedded in
// free-form model output. Markdown code fences are stripped first. The scan
// is string- and escape-aware so braces inside string values don't break the
// balance count. Returns ("", false) when no complete payload is present.
func locateJSON(text string) (string, bool) {
	text = stripFences(text)

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

// stripFences removes a leading markdown code fence and its closing fence.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
	} else {
		return text
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// decodePayload locates the embedded JSON payload in model output and
// unmarshals it into v. Absence of a locatable payload is a parse failure.
func decodePayload(text string, v any) error {
	payload, ok := locateJSON(text)
	if !ok {
		return eris.New("parse: no JSON payload found in response")
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return eris.Wrap(err, "parse: unmarshal payload")
	}
	return nil
}

// clampScore forces a raw model-provided score into the [0,100] range.
func clampScore(raw float64) int {
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return int(raw)
}
