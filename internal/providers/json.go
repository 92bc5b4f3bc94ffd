package providers

import "strings"

// ExtractJSON pulls the JSON object out of an LLM response that may wrap it
// in prose or markdown fences. Returns the text between the first '{' and
// the last '}', or false when no object is present.
func ExtractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
