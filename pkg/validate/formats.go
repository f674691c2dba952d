package validate

import (
	"fmt"
	"regexp"
)

// Built-in named formats. Deliberately permissive; strict RFC parsing is
// a plugin validator's job.
var formats = map[string]*regexp.Regexp{
	"email": regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
	"url":   regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`),
	"phone": regexp.MustCompile(`^\+?[0-9][0-9 ().-]{6,}$`),
}

func checkFormat(field, format, value string) string {
	re, ok := formats[format]
	if !ok {
		return fmt.Sprintf("%s references unknown format %q", field, format)
	}
	if !re.MatchString(value) {
		return fmt.Sprintf("%s is not a valid %s", field, format)
	}
	return ""
}

// Formats returns the names of the built-in format validators.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	return names
}
