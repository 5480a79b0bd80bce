// Package template resolves {{path.to.value}} tokens against a run context.
package template

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{[^}]*\}\}`)

// Resolve replaces every {{path}} token in input with the string form of the value found
// at path in data. Tokens whose path is missing, or resolves to nil, are left verbatim.
func Resolve(input string, data map[string]any) string {
	if input == "" || !strings.Contains(input, "{{") {
		return input
	}

	return tokenPattern.ReplaceAllStringFunc(input, func(token string) string {
		path := token[2 : len(token)-2]

		value, ok := Lookup(path, data)
		if !ok || value == nil {
			return token
		}

		return String(value)
	})
}

// ResolveConfig resolves every value of a node config.
func ResolveConfig(config map[string]string, data map[string]any) map[string]string {
	resolved := make(map[string]string, len(config))

	for key, value := range config {
		resolved[key] = Resolve(value, data)
	}

	return resolved
}

// HasTokens reports whether input contains at least one token.
func HasTokens(input string) bool {
	return tokenPattern.MatchString(input)
}
