// Package taxonomy builds the lookups used to route corpus records: the
// species to family map loaded from a reference table and the short code
// to species resolver derived from existing class folders.
//
// Both lookups are built once and are read-only afterwards. Every key passes
// through Normalize on the way in and on the way out.
package taxonomy

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes a species name for lookups. The result is NFC,
// lower-cased, with underscores and hyphens turned into spaces and runs of
// whitespace collapsed to one space. Normalize(Normalize(s)) == Normalize(s).
func Normalize(name string) string {
	s := norm.NFC.String(name)
	s = cases.Lower(language.Und).String(s)
	s = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
