package form

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DisplayName reduces a selected file's name to the value written into a
// fileName field: the base name only, NFC-normalized, without control
// characters or surrounding whitespace.
func DisplayName(name string) string {
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}
