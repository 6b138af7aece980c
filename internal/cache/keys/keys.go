// Package keys builds the Redis keys of cached dataset extents.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const maxIDTextLen = 96

// SpaceKey returns "space:<readable id>:h=<hash>". The readable part is a
// sanitized, truncated copy of the dataset id; the hash covers the full id,
// so distinct ids never share a key.
func SpaceKey(datasetID string) string {
	id := strings.TrimSpace(datasetID)
	safe := sanitize(id)
	if len(safe) > maxIDTextLen {
		safe = safe[:maxIDTextLen]
	}
	return fmt.Sprintf("space:%s:h=%016x", safe, xxhash.Sum64String(id))
}

// sanitize keeps ASCII letters, digits and "_-./"; runs of anything else
// collapse to a single '-'.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevDash := false
	for _, r := range s {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)),
			r == '_', r == '.', r == '/':
			b.WriteRune(r)
			prevDash = false
		case !prevDash:
			b.WriteByte('-')
			prevDash = true
		}
	}
	return b.String()
}
