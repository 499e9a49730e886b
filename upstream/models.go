package upstream

import "sort"

// Model aliases understood by every backend.
const (
	AliasCodeLlama = "codellama"
	AliasDeepSeek  = "deepseek"
)

// Models maps short aliases onto concrete backend model names.
type Models map[string]string

// DefaultModels returns the stock alias table.
func DefaultModels() Models {
	return Models{
		AliasCodeLlama: "codellama:7b",
		AliasDeepSeek:  "deepseek-coder:6.7b",
	}
}

// Resolve maps an alias to its concrete name. Unknown names pass through unchanged.
func (m Models) Resolve(name string) string {
	if concrete, ok := m[name]; ok && concrete != "" {
		return concrete
	}
	return name
}

// Aliases returns the configured alias names in sorted order.
func (m Models) Aliases() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
