// Package logging builds the process logger and masks secrets in log output.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Redacted replaces values that must never reach a log.
const Redacted = "[REDACTED]"

// tokenHeaders keep their last four characters so operators can tell tokens apart.
var tokenHeaders = map[string]bool{
	"authorization":    true,
	"x-admin-token":    true,
	"kong-admin-token": true,
	"x-api-key":        true,
	"apikey":           true,
}

var secretHeaders = map[string]bool{
	"cookie":              true,
	"set-cookie":          true,
	"proxy-authorization": true,
}

// secretKeys are JSON keys redacted in every body, allowlisted or not.
var secretKeys = map[string]bool{
	"token":      true,
	"adminToken": true,
	"password":   true,
	"secret":     true,
	"tokenHash":  true,
}

// MaskHeader returns value with credentials hidden, based on the header name.
func MaskHeader(name, value string) string {
	lower := strings.ToLower(name)
	switch {
	case secretHeaders[lower], strings.Contains(lower, "password"), strings.Contains(lower, "secret"):
		return Redacted
	case tokenHeaders[lower]:
		return lastFour(value)
	default:
		return value
	}
}

func lastFour(v string) string {
	if len(v) < 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// MaskJSONBody redacts scalar JSON values whose key is not in allowlist. Objects
// and arrays are walked so nested allowlisted keys survive. A nil allowlist keeps
// every key. Keys in secretKeys are always redacted. Bodies that are not JSON are
// returned unchanged.
func MaskJSONBody(body []byte, allowlist []string) []byte {
	if len(body) == 0 {
		return body
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	var allowed map[string]bool
	if allowlist != nil {
		allowed = make(map[string]bool, len(allowlist))
		for _, k := range allowlist {
			allowed[k] = true
		}
	}

	out, err := json.Marshal(maskValue(data, allowed))
	if err != nil {
		return body
	}
	return out
}

// maskValue applies the key policy. A nil allowed map admits every non-secret key.
func maskValue(v any, allowed map[string]bool) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			switch val.(type) {
			case map[string]any, []any:
				out[key] = maskValue(val, allowed)
				continue
			}
			if secretKeys[key] || (allowed != nil && !allowed[key]) {
				out[key] = Redacted
				continue
			}
			out[key] = val
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = maskValue(item, allowed)
		}
		return out
	default:
		return v
	}
}

// FormatBinaryData stands in for bodies that are not valid UTF-8.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[BINARY: %d bytes]", len(data))
}
