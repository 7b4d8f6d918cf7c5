package sqlstore

import (
	"strings"
)

const redactedValue = "[REDACTED]"

// RedactMetadata masks provider and registrar credentials, at any depth, before a summary
// is written to the ledger.
func RedactMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactMap(metadata)
}

func redactMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if isSensitiveKey(key) {
			target[key] = redactedValue
			continue
		}
		target[key] = redactValue(value)
	}
	return target
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactValue(typed[i])
		}
		return out
	default:
		return value
	}
}

// credentialKeys are the config fields of the order provider and the
// registrar that can leak into an action summary.
var credentialKeys = map[string]struct{}{
	"username":    {},
	"password":    {},
	"private_key": {},
	"user_email":  {},
	"token":       {},
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := credentialKeys[key]; ok {
		return true
	}
	return strings.HasSuffix(key, "_token") || strings.HasSuffix(key, "_password")
}
