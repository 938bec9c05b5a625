package store

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// FilenameToken derives a deterministic filesystem-safe token for a URL.
// The path (slashes included) is flattened to [A-Za-z0-9_-.] characters,
// an empty path becomes "root", and a query string appends a short hash
// suffix so distinct query variants of the same path do not collide.
//
// The suffix is the first 8 hex characters of sha256(query). Two distinct
// queries colliding on the truncated hash is accepted as a documented
// low-probability event (~1 in 4 billion per pair).
func FilenameToken(u *url.URL) string {
	if u == nil {
		return "root"
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		path = "root"
	}

	var b strings.Builder
	b.Grow(len(path))
	for _, r := range path {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	token := b.String()

	if u.RawQuery != "" {
		sum := sha256.Sum256([]byte(u.RawQuery))
		token += "_q" + hex.EncodeToString(sum[:4])
	}
	return token
}

// DomainDirName converts a host (possibly with a port) into a directory
// name safe for every filesystem.
func DomainDirName(host string) string {
	return strings.ReplaceAll(strings.ToLower(host), ":", "_")
}
