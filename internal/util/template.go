package util

import (
	"fmt"
	"strings"
	"text/template"
)

// promptFuncs are available to every agent prompt.
var promptFuncs = template.FuncMap{
	"default": func(fallback, v any) any {
		if v == nil || v == "" {
			return fallback
		}
		return v
	},
	"trim": strings.TrimSpace,
	"join": func(sep string, items any) string {
		switch v := items.(type) {
		case nil:
			return ""
		case []string:
			return strings.Join(v, sep)
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, sep)
		default:
			return fmt.Sprint(v)
		}
	},
	"truncate": func(n int, s string) string { return Truncate(s, n) },
}

// MustTemplate parses a prompt at package init. Missing variables render
// empty; prompts go to a model, so nothing is HTML-escaped.
func MustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=zero").Funcs(promptFuncs).Parse(text))
}

// Execute renders tmpl against vars.
func Execute(tmpl *template.Template, vars map[string]any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", tmpl.Name(), err)
	}
	return strings.ReplaceAll(b.String(), "<no value>", ""), nil
}
