package delta

import (
    "crypto/sha256"
    "encoding/hex"
    "strings"
)

// Normalize canonicalizes a URL for dedup: scheme, "www.", query string,
// fragment and trailing slashes are removed and the result is lowercased.
// The result is a fixed point, so Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) string {
    u := strings.ToLower(strings.TrimSpace(raw))
    for {
        next := normalizeOnce(u)
        if next == u {
            return next
        }
        u = next
    }
}

func normalizeOnce(u string) string {
    if i := strings.Index(u, "://"); i > 0 && isScheme(u[:i]) {
        u = u[i+3:]
    }
    u = strings.TrimPrefix(u, "//")
    u = strings.TrimPrefix(u, "www.")
    if i := strings.IndexAny(u, "?#"); i >= 0 {
        u = u[:i]
    }
    return strings.TrimRight(u, "/")
}

func isScheme(s string) bool {
    for _, r := range s {
        switch {
        case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '-', r == '.':
        default:
            return false
        }
    }
    return true
}

// Hash is the stable dedup key of a URL: hex SHA-256 of its normalized form.
func Hash(raw string) string {
    sum := sha256.Sum256([]byte(Normalize(raw)))
    return hex.EncodeToString(sum[:])
}
