package util

import "strings"

// StorageKey qualifies key with prefix: "prefix.key", or key unchanged when
// prefix is empty.
func StorageKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// GlobEscape escapes Redis glob metacharacters so s matches literally in a
// SCAN MATCH pattern.
func GlobEscape(s string) string {
	if !strings.ContainsAny(s, `*?[]\^`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '*', '?', '[', ']', '\\', '^':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// LikeEscape escapes SQL LIKE metacharacters using '\' as the escape character.
func LikeEscape(s string) string {
	if !strings.ContainsAny(s, `%_\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
