package ollama

import (
	"encoding/base64"
	"strings"
)

func encodeImage(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// stripFences removes a leading markdown code fence (```json or ```) and a
// trailing one, if present. Models add them no matter how firmly the prompt
// forbids it.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// ExtractJSONArray pulls the first [...] span out of a model response,
// tolerating fences and prose around it. Returns false when no array is
// found.
func ExtractJSONArray(response string) (string, bool) {
	return extractSpan(stripFences(response), '[', ']')
}

// ExtractJSONObject pulls the first {...} span out of a model response.
func ExtractJSONObject(response string) (string, bool) {
	return extractSpan(stripFences(response), '{', '}')
}

func extractSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(s, close)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}
