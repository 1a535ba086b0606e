package rdb

import (
	"strconv"
	"strings"

	"github.com/stokaro/formkit/core/platform"
)

// Rebind rewrites ? placeholders into the form the dialect expects. Text inside
// single quotes is copied unchanged.
func Rebind(dialect, query string) string {
	if !platform.UsesNumberedPlaceholders(dialect) || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			sb.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}
