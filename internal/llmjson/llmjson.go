// Package llmjson decodes JSON answers from language models that wrap their
// output in Markdown code fences or surround it with prose.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when the content holds no decodable JSON value.
var ErrNoJSON = errors.New("llmjson: no JSON value in model output")

// Decode strips Markdown fences from content and unmarshals it into v. When
// the cleaned content is not valid JSON, the outermost object or array
// embedded in it is tried instead.
func Decode(content string, v any) error {
	cleaned := StripFences(content)
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(cleaned, pair[0])
		end := strings.LastIndex(cleaned, pair[1])
		if start < 0 || end <= start {
			continue
		}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %.120q", ErrNoJSON, content)
}

// StripFences removes a leading ```json or ``` fence and a trailing ``` fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
