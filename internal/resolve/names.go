// Package resolve maps the names, nationalities and team labels of every
// source onto the canonical keys, and assigns stored identities to people,
// manufacturers and crews.
package resolve

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var particles = map[string]struct{}{
	"van": {}, "der": {}, "den": {}, "von": {}, "de": {}, "da": {}, "di": {}, "du": {}, "la": {}, "le": {},
}

// ShortName builds the canonical "Surname I." key.
func ShortName(first, last string) string {
	surname := normalizeSurname(last)
	initial := Initial(first)
	switch {
	case surname == "":
		return strings.TrimSpace(strings.Join(strings.Fields(first), " "))
	case initial == "":
		return surname
	default:
		return surname + " " + initial
	}
}

// FromInitialSurname converts "S. OGIER" into "Ogier S.".
func FromInitialSurname(name string) string {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return strings.TrimSpace(name)
	}
	return ShortName(fields[0], strings.Join(fields[1:], " "))
}

// FromSurnameFirst converts "OGIER Sébastien" into "Ogier S.". Leading
// upper-case tokens form the surname; the first token is used when none is.
func FromSurnameFirst(name string) string {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return normalizeSurname(name)
	}
	split := 0
	for split < len(fields) && isAllCaps(fields[split]) {
		split++
	}
	if split == 0 || split == len(fields) {
		split = 1
	}
	return ShortName(strings.Join(fields[split:], " "), strings.Join(fields[:split], " "))
}

// Initial returns the upper-cased first letter of first followed by a dot.
func Initial(first string) string {
	first = strings.TrimSpace(first)
	r, _ := utf8.DecodeRuneInString(first)
	if r == utf8.RuneError || !unicode.IsLetter(r) {
		return ""
	}
	return string(unicode.ToUpper(r)) + "."
}

// SplitShortName separates "Surname I." into its surname and initial.
func SplitShortName(name string) (string, string) {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return name, ""
	}
	last := fields[len(fields)-1]
	if !strings.HasSuffix(last, ".") {
		return name, ""
	}
	return strings.Join(fields[:len(fields)-1], " "), last
}

func normalizeSurname(last string) string {
	fields := strings.Fields(last)
	for i, f := range fields {
		if !isAllCaps(f) {
			continue
		}
		lower := strings.ToLower(f)
		if _, ok := particles[lower]; ok && i > 0 && i < len(fields)-1 {
			fields[i] = lower
			continue
		}
		parts := strings.Split(f, "-")
		for j, p := range parts {
			parts[j] = cases.Title(language.Und).String(p)
		}
		fields[i] = strings.Join(parts, "-")
	}
	return strings.Join(fields, " ")
}

// isAllCaps reports whether s has letters and none of them is lower case.
func isAllCaps(s string) bool {
	letters := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters = true
		}
	}
	return letters
}

// Fold lower-cases s and strips diacritics so "Tänak" compares equal to "Tanak".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
