package tool

import "strings"

// RegisterBuiltins wires the built-in career tools into the registry.
func RegisterBuiltins(r *Registry) {
	r.MustRegister(searchJobsTool())
	r.MustRegister(parseJDTool())
	r.MustRegister(scoreATSTool())
	r.MustRegister(researchCompanyTool())
	r.MustRegister(draftCoverLetterTool())
	r.MustRegister(salaryResearchTool())
}

// Argument extraction helpers. Schema validation has already run, so these
// only need to cope with JSON's type surface (float64 numbers, []any lists).

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func stringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
