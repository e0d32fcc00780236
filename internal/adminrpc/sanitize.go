package adminrpc

import (
	"net/http"
	"strings"
)

// sensitiveHeaderNames are stripped outright regardless of pattern,
// per spec.md §6.
var sensitiveHeaderNames = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

// sensitiveHeaderParts additionally strips any header whose name
// contains one of these substrings, case-insensitively (e.g.
// "X-Api-Key", "X-Auth-Token").
var sensitiveHeaderParts = []string{"secret", "token", "key"}

// sanitizeHeaders strips credentials from a probe's response headers
// before they reach an admin response body. New logic: the teacher's
// internal/http package never echoes upstream response headers back
// to a caller, so there is no existing sanitization routine to adapt.
func sanitizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		if isSensitiveHeader(name) {
			continue
		}
		out[name] = values[0]
	}
	return out
}

func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	if sensitiveHeaderNames[lower] {
		return true
	}
	for _, part := range sensitiveHeaderParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
