// Package query renders parameterized query templates.
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Placeholders returns the parameter names referenced by a template,
// deduplicated and sorted.
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		seen[m[1]] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render substitutes {{param}} placeholders with the given values.
// Every placeholder must have a value; extra values are ignored.
func Render(template string, values map[string]string) (string, error) {
	var missing []string
	rendered := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("Render: missing parameters: %s", strings.Join(missing, ", "))
	}
	return rendered, nil
}
