package schema

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	acronymBoundary = regexp.MustCompile(`([A-Z\d]+)([A-Z][a-z])`)
	wordBoundary    = regexp.MustCompile(`([a-z\d])([A-Z])`)
)

// Underscore converts a CamelCase type name to snake_case ("PhoneNumber" -> "phone_number").
func Underscore(s string) string {
	s = acronymBoundary.ReplaceAllString(s, "${1}_${2}")
	s = wordBoundary.ReplaceAllString(s, "${1}_${2}")
	s = strings.ReplaceAll(s, "-", "_")
	return cases.Lower(language.Und).String(s)
}

// Humanize turns a snake_case name into a sentence-cased label
// ("created_at" -> "Created at", "author_id" -> "Author").
func Humanize(s string) string {
	s = strings.TrimSuffix(s, "_id")
	s = strings.ReplaceAll(s, "_", " ")
	words := strings.Fields(cases.Lower(language.Und).String(s))
	if len(words) == 0 {
		return ""
	}
	// cases.Caser is stateful, so one is built per call.
	words[0] = cases.Title(language.English).String(words[0])
	return strings.Join(words, " ")
}

// Titleize capitalizes every word of the humanized name ("user_detail" -> "User Detail").
func Titleize(s string) string {
	return cases.Title(language.English).String(Humanize(Underscore(s)))
}

// ModelDescription is the description given to a compiled model schema
// ("PhoneNumber" -> "Phone number model").
func ModelDescription(typeName string) string {
	h := Humanize(Underscore(typeName))
	if h == "" {
		return "Model"
	}
	return h + " model"
}
