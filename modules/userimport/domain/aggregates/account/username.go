package account

import (
	"strconv"
	"strings"
)

// DeriveBaseUsername lowercases email and replaces every character outside
// [a-z0-9._@-] with an underscore.
func DeriveBaseUsername(email string) string {
	email = NormalizeEmail(email)
	var b strings.Builder
	b.Grow(len(email))
	for _, r := range email {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '@', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// UsernameCandidate returns base for attempt 0 and base followed by the
// attempt number afterwards.
func UsernameCandidate(base string, attempt int) string {
	if attempt <= 0 {
		return base
	}
	return base + strconv.Itoa(attempt)
}
