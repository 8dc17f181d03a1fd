package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the first JSON object or array out of a model response.
// Models asked for JSON routinely wrap it in markdown fences or prose, so
// the cleanup is deliberately forgiving: strip code fences, then scan for
// the outermost balanced object. The returned string is verified to be
// valid JSON; anything else yields a *JSONExtractionError.
func ExtractJSON(content string) (string, error) {
	candidate := stripCodeFences(content)

	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	for _, open := range []byte{'{', '['} {
		if extracted, ok := balancedSlice(candidate, open); ok {
			if json.Valid([]byte(extracted)) {
				return extracted, nil
			}
		}
	}

	return "", &JSONExtractionError{Raw: content, Err: errNoJSON}
}

var errNoJSON = jsonScanError("no balanced JSON value found")

type jsonScanError string

func (e jsonScanError) Error() string { return string(e) }

// stripCodeFences removes markdown code fence lines, keeping their content.
func stripCodeFences(text string) string {
	if !strings.Contains(text, "```") {
		return strings.TrimSpace(text)
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// balancedSlice returns the first balanced bracket run starting at the
// first occurrence of open. String literals and escapes are honoured.
func balancedSlice(text string, open byte) (string, bool) {
	var closer byte
	switch open {
	case '{':
		closer = '}'
	case '[':
		closer = ']'
	default:
		return "", false
	}

	start := strings.IndexByte(text, open)
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
		case closer:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
