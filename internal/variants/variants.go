// Package variants defines the fixed set of card compositions the composer
// can render. The set is closed: anything outside it is rejected at the
// boundary, before a job is enqueued.
package variants

import "strings"

// Theme is the light/dark flavor baked into a variant id.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// All is the complete list of renderable variant ids.
var All = []string{
	"readme-dark-gemini",
	"readme-light-gemini",
	"readme-dark-waves",
	"readme-light-waves",
	"commit-streak-dark",
	"commit-streak-light",
	"top-languages-dark",
	"top-languages-light",
	"contribution-dark",
	"contribution-light",
	"commit-graph-dark-wave",
	"commit-graph-light-wave",
	"commit-graph-dark-rain",
	"commit-graph-light-rain",
	"commit-graph-dark-cascade",
	"commit-graph-light-cascade",
}

var known = func() map[string]struct{} {
	m := make(map[string]struct{}, len(All))
	for _, v := range All {
		m[v] = struct{}{}
	}
	return m
}()

// IsValid reports whether id is a known variant.
func IsValid(id string) bool {
	_, ok := known[id]
	return ok
}

// ThemeOf derives the theme from the variant id. Dark is the default: only
// ids containing "light" are light.
func ThemeOf(id string) Theme {
	if strings.Contains(id, "light") {
		return ThemeLight
	}
	return ThemeDark
}

// ByTheme returns the variants matching the given theme. An empty or "all"
// theme returns every variant.
func ByTheme(theme string) []string {
	if theme == "" || theme == "all" {
		out := make([]string, len(All))
		copy(out, All)
		return out
	}
	out := make([]string, 0, len(All)/2)
	for _, v := range All {
		if string(ThemeOf(v)) == theme {
			out = append(out, v)
		}
	}
	return out
}

// Grouped returns the variants grouped by card family, for listing endpoints.
func Grouped() map[string][]string {
	groups := map[string]string{
		"readme":       "readme-",
		"commitStreak": "commit-streak-",
		"topLanguages": "top-languages-",
		"contribution": "contribution-",
		"commitGraph":  "commit-graph-",
	}
	out := make(map[string][]string, len(groups))
	for name, prefix := range groups {
		for _, v := range All {
			if strings.HasPrefix(v, prefix) {
				out[name] = append(out[name], v)
			}
		}
	}
	return out
}
