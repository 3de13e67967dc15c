package official

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

// The official payloads are not contractually stable, so every field is
// read through these helpers: each accepts several candidate keys and
// returns the first present, non-zero value, like a chain of fallbacks.

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

// dig walks nested object keys.
func dig(v any, keys ...string) any {
	for _, k := range keys {
		m := asObject(v)
		if m == nil {
			return nil
		}
		v = m[k]
	}
	return v
}

// listAt returns v itself when it is a list, otherwise the first list
// found under one of keys.
func listAt(v any, keys ...string) []any {
	if l := asList(v); l != nil {
		return l
	}
	for _, k := range keys {
		if l := asList(dig(v, k)); l != nil {
			return l
		}
	}
	return nil
}

func first(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && !isZero(v) {
			return v
		}
	}
	return nil
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return x == 0
	case bool:
		return !x
	default:
		return false
	}
}

func text(obj map[string]any, keys ...string) *string {
	switch v := first(obj, keys...).(type) {
	case string:
		return rally.StringPtr(strings.TrimSpace(v))
	case float64:
		return rally.Ptr(strconv.FormatFloat(v, 'f', -1, 64))
	case map[string]any:
		return text(v, "name", "en")
	default:
		return nil
	}
}

func number(obj map[string]any, keys ...string) *float64 {
	switch v := first(obj, keys...).(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f == 0 {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func integer(obj map[string]any, keys ...string) *int {
	f := number(obj, keys...)
	if f == nil {
		return nil
	}
	return rally.Ptr(int(math.Round(*f)))
}

func id64(obj map[string]any, keys ...string) *int64 {
	f := number(obj, keys...)
	if f == nil {
		return nil
	}
	return rally.Ptr(int64(math.Round(*f)))
}

// millis reads a duration that is either numeric milliseconds or a
// clock string such as "1:02.300".
func millis(obj map[string]any, keys ...string) *int64 {
	switch v := first(obj, keys...).(type) {
	case float64:
		return rally.Ptr(int64(math.Round(v)))
	case string:
		if ms, err := rally.ParseDuration(v); err == nil {
			return &ms
		}
		return nil
	default:
		return nil
	}
}

// offset reads a gap in milliseconds. Unlike millis a numeric zero is a
// value: the leader's gap is 0, not absent.
func offset(obj map[string]any, keys ...string) *int64 {
	for _, k := range keys {
		if v, ok := obj[k].(float64); ok {
			return rally.Ptr(int64(math.Round(v)))
		}
	}
	return millis(obj, keys...)
}

func flag(obj map[string]any, keys ...string) *bool {
	var out *bool
	for _, k := range keys {
		if b, ok := obj[k].(bool); ok {
			if b {
				return rally.Ptr(true)
			}
			out = rally.Ptr(false)
		}
	}
	return out
}

// has reports whether any of keys is present, even with a zero value.
func has(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return true
		}
	}
	return false
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func date(obj map[string]any, keys ...string) *time.Time {
	s := text(obj, keys...)
	if s == nil {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}
