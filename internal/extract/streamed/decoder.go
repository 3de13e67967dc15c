// Package streamed recovers JSON values embedded in the streamed flight
// payload chunks that server-rendered pages push through
// self.__next_f.push([1,"..."]). Every function here is stateless and
// tolerant: layout drift yields empty results, never an error.
package streamed

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

var pushPattern = regexp.MustCompile(`self\.__next_f\.push\(\[1,"((?:[^"\\]|\\.)*)"\]\)`)

// Chunks returns the raw, still-escaped payload string of every push call in html.
func Chunks(html string) []string {
	matches := pushPattern.FindAllStringSubmatch(html, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m[1] != "" {
			out = append(out, m[1])
		}
	}
	return out
}

// Unescape decodes the JavaScript string escapes of one chunk in a single
// left-to-right pass so that \\" and \" are told apart correctly.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"', '\\', '/':
			b.WriteByte(s[i])
		case 'u':
			r, width := decodeUnicode(s[i+1:])
			if width == 0 {
				b.WriteString(`\u`)
				continue
			}
			b.WriteRune(r)
			i += width
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// decodeUnicode reads XXXX (and a trailing \uXXXX low surrogate when needed)
// and returns the rune plus the number of bytes consumed.
func decodeUnicode(s string) (rune, int) {
	if len(s) < 4 {
		return 0, 0
	}
	v, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return 0, 0
	}
	r := rune(v)
	if !utf16.IsSurrogate(r) {
		return r, 4
	}
	if len(s) >= 10 && s[4] == '\\' && s[5] == 'u' {
		if lo, err := strconv.ParseUint(s[6:10], 16, 16); err == nil {
			if pair := utf16.DecodeRune(r, rune(lo)); pair != utf8.RuneError {
				return pair, 10
			}
		}
	}
	return utf8.RuneError, 4
}

// Balanced returns the array or object starting at text[start], found by
// counting bracket depth until it returns to zero. Brackets inside JSON
// string literals are ignored. It reports false if the value never closes.
func Balanced(text string, start int) (string, bool) {
	if start < 0 || start >= len(text) || (text[start] != '[' && text[start] != '{') {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// Values returns, in document order, every balanced array or object that
// directly follows a "key": occurrence in text.
func Values(text, key string) []string {
	needle := `"` + key + `":`
	var out []string
	for offset := 0; offset < len(text); {
		idx := strings.Index(text[offset:], needle)
		if idx < 0 {
			break
		}
		pos := offset + idx + len(needle)
		for pos < len(text) && (text[pos] == ' ' || text[pos] == '\n' || text[pos] == '\t' || text[pos] == '\r') {
			pos++
		}
		if raw, ok := Balanced(text, pos); ok {
			out = append(out, raw)
		}
		offset = pos
	}
	return out
}

// FindValue returns the first balanced value for key in text.
func FindValue(text, key string) (string, bool) {
	values := Values(text, key)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// DecodeArray decodes the first "key":[...] array in html that parses into
// []T and passes accept. Chunks are tried one by one, then their
// concatenation for values split across chunks, then the raw html.
func DecodeArray[T any](html, key string, accept func([]T) bool) ([]T, bool) {
	return decode(html, key, accept)
}

// DecodeObject is DecodeArray for "key":{...} objects.
func DecodeObject[T any](html, key string, accept func(T) bool) (T, bool) {
	return decode(html, key, accept)
}

func decode[T any](html, key string, accept func(T) bool) (T, bool) {
	var zero T
	for _, text := range candidates(html) {
		for _, raw := range Values(text, key) {
			var out T
			if err := json.Unmarshal([]byte(raw), &out); err != nil {
				continue
			}
			if accept == nil || accept(out) {
				return out, true
			}
		}
	}
	return zero, false
}

func candidates(html string) []string {
	chunks := Chunks(html)
	if len(chunks) == 0 {
		return []string{html}
	}
	out := make([]string, 0, len(chunks)+1)
	for _, c := range chunks {
		out = append(out, Unescape(c))
	}
	if len(out) > 1 {
		out = append(out, strings.Join(out, ""))
	}
	return out
}
