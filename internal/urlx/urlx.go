// Package urlx holds host helpers shared by query generation, scoring and
// delta detection.
package urlx

import (
    "net/url"
    "strings"

    "golang.org/x/net/publicsuffix"
)

// Host returns the lowercased hostname of raw without a leading "www.".
// Scheme-less input ("example.com/path") is accepted.
func Host(raw string) string {
    raw = strings.TrimSpace(raw)
    if raw == "" {
        return ""
    }
    if !strings.Contains(raw, "://") {
        raw = "http://" + raw
    }
    u, err := url.Parse(raw)
    if err != nil {
        return ""
    }
    return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Registrable returns the eTLD+1 of host, or host itself when it has none.
func Registrable(host string) string {
    host = strings.TrimPrefix(strings.ToLower(host), "www.")
    registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
    if err != nil {
        return host
    }
    return registrable
}

// MatchesDomain reports whether host is domain or a subdomain of it. domain
// may itself carry a path ("drive.google.com/file"); only its host is used.
func MatchesDomain(host, domain string) bool {
    d := Host(domain)
    if host == "" || d == "" {
        return false
    }
    return host == d || strings.HasSuffix(host, "."+d)
}

// MatchesAny returns the first entry of domains matched by host.
func MatchesAny(host string, domains []string) (string, bool) {
    for _, d := range domains {
        if MatchesDomain(host, d) {
            return d, true
        }
    }
    return "", false
}
