package mfa

import "encoding/json"

// Data blobs round-trip through JSON in SQL backends, so numbers may come
// back as float64 or json.Number.

func dataInt(data map[string]any, key string, def int) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func dataString(data map[string]any, key, def string) string {
	if v, ok := data[key].(string); ok && v != "" {
		return v
	}
	return def
}

func dataBool(data map[string]any, key string) bool {
	v, _ := data[key].(bool)
	return v
}
