// Package logging provides utilities for secure logging with data masking.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaskHeader redacts sensitive header values based on header name.
// Returns the redacted value suitable for logging.
//
// Rules:
// - Password/secret/cookie headers: "[REDACTED]" (no partial reveal)
// - Token/API key headers: "****" + last4chars (e.g., "****ab3f")
// - Other headers: returned unchanged
func MaskHeader(name, value string) string {
	lowerName := strings.ToLower(name)

	// Cookies carry the session credential verbatim
	if strings.Contains(lowerName, "password") ||
		strings.Contains(lowerName, "secret") ||
		lowerName == "cookie" ||
		lowerName == "set-cookie" {
		return "[REDACTED]"
	}

	if lowerName == "authorization" ||
		lowerName == "x-ingest-key" ||
		lowerName == "x-api-key" {
		if len(value) < 4 {
			return "****"
		}
		return "****" + value[len(value)-4:]
	}

	return value
}

// MaskJSONBody redacts the values of denylisted fields anywhere in a JSON body.
// If denylist is empty, or the body is not JSON, the body is returned unchanged.
func MaskJSONBody(body []byte, denylist []string) []byte {
	if len(denylist) == 0 || len(body) == 0 {
		return body
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	deny := make(map[string]bool, len(denylist))
	for _, field := range denylist {
		deny[strings.ToLower(field)] = true
	}

	result, err := json.Marshal(maskJSONValue(data, deny))
	if err != nil {
		return body
	}
	return result
}

// maskJSONValue recursively masks JSON values whose key is denylisted
func maskJSONValue(value any, deny map[string]bool) any {
	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			if deny[strings.ToLower(key)] {
				result[key] = "[REDACTED]"
				continue
			}
			result[key] = maskJSONValue(val, deny)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = maskJSONValue(item, deny)
		}
		return result
	default:
		return value
	}
}

// Truncate shortens s to at most limit bytes, marking the cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("...[%d bytes truncated]", len(s)-limit)
}

// FormatBinaryData formats binary data for logging.
// Returns a human-readable size indicator.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[BINARY: %d bytes]", len(data))
}
