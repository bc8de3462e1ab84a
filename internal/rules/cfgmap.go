package rules

// Helpers for reading trigger/condition/action configuration maps.
// Configs come from JSON or YAML decoding, so numbers may arrive as
// float64, int or int64.

func cfgString(cfg map[string]any, key string) string {
	if cfg == nil {
		return ""
	}
	s, _ := cfg[key].(string)
	return s
}

func cfgHas(cfg map[string]any, key string) bool {
	if cfg == nil {
		return false
	}
	_, ok := cfg[key]
	return ok
}

func cfgBool(cfg map[string]any, key string) (bool, bool) {
	if cfg == nil {
		return false, false
	}
	b, ok := cfg[key].(bool)
	return b, ok
}

func cfgInt(cfg map[string]any, key string) (int, bool) {
	if cfg == nil {
		return 0, false
	}
	return anyInt(cfg[key])
}

func cfgFloat(cfg map[string]any, key string) (float64, bool) {
	if cfg == nil {
		return 0, false
	}
	switch n := cfg[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func cfgStrings(cfg map[string]any, key string) []string {
	if cfg == nil {
		return nil
	}
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func cfgInts(cfg map[string]any, key string) []int {
	if cfg == nil {
		return nil
	}
	switch v := cfg[key].(type) {
	case []int:
		return v
	case []any:
		out := make([]int, 0, len(v))
		for _, e := range v {
			if n, ok := anyInt(e); ok {
				out = append(out, n)
			}
		}
		return out
	default:
		return nil
	}
}

func cfgMap(cfg map[string]any, key string) map[string]any {
	if cfg == nil {
		return nil
	}
	m, _ := cfg[key].(map[string]any)
	return m
}

func anyInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	default:
		return 0, false
	}
}

// compareInts applies one of the six comparison operators. Unknown
// operators compare false.
func compareInts(got, want int, operator string) bool {
	switch operator {
	case "", "eq":
		return got == want
	case "ne":
		return got != want
	case "gt":
		return got > want
	case "lt":
		return got < want
	case "ge":
		return got >= want
	case "le":
		return got <= want
	default:
		return false
	}
}
