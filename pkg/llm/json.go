package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a completion contains no JSON object.
var ErrNoJSON = errors.New("no json object in completion")

// ExtractJSON decodes the first balanced {...} block of a completion into v,
// skipping any prose or code fences around it.
func ExtractJSON(completion string, v interface{}) error {
	start := strings.Index(completion, "{")
	if start < 0 {
		return ErrNoJSON
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(completion); i++ {
		ch := completion[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return json.Unmarshal([]byte(completion[start:i+1]), v)
			}
		}
	}
	return ErrNoJSON
}
