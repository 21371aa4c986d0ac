// Package scanners holds the platform scanners used by the router. Each one
// spends one request per budget unit.
package scanners

import (
    "strings"
    "time"

    "leakhound/internal/domain"
)

const (
    userAgent = "leakhound-scanner/1.0 (+https://leakhound.io/bot)"

    // requestTimeout bounds a single page fetch.
    requestTimeout = 15 * time.Second
)

// searchTerms returns the distinct phrases to search a platform for, product
// name first.
func searchTerms(product domain.Product, platform domain.Platform) []string {
    var out []string
    seen := map[string]bool{}
    add := func(s string) {
        s = strings.Join(strings.Fields(s), " ")
        if s == "" || seen[strings.ToLower(s)] {
            return
        }
        seen[strings.ToLower(s)] = true
        out = append(out, s)
    }
    add(product.Name)
    for _, s := range product.Signals.PlatformSearchTerms[platform] {
        add(s)
    }
    for _, s := range product.AlternateNames {
        add(s)
    }
    return out
}
