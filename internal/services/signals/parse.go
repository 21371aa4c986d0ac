// Package signals reads the AI-extracted signal bundle attached to a product.
// The bundle is produced by a model and is treated as untrusted input.
package signals

import (
    "strings"

    "github.com/antonholmquist/jason"

    "leakhound/internal/domain"
)

const (
    maxEntries  = 20
    maxEntryLen = 160
)

var knownPlatforms = map[domain.Platform]bool{
    domain.PlatformWeb:         true,
    domain.PlatformTelegram:    true,
    domain.PlatformDiscord:     true,
    domain.PlatformReddit:      true,
    domain.PlatformTorrent:     true,
    domain.PlatformCyberlocker: true,
    domain.PlatformForum:       true,
    domain.PlatformCode:        true,
    domain.PlatformSocial:      true,
}

// Parse extracts what it can from raw. Anything missing or malformed is
// dropped; a nil or unparsable input yields an empty bundle.
func Parse(raw []byte) domain.AISignals {
    out := domain.AISignals{Untrusted: true}
    if len(raw) == 0 {
        return out
    }
    obj, err := jason.NewObjectFromBytes(raw)
    if err != nil {
        return out
    }

    out.UniquePhrases = stringList(obj, "unique_phrases")
    out.BrandIdentifiers = stringList(obj, "brand_identifiers")
    out.CopyrightedTerms = stringList(obj, "copyrighted_terms")
    out.AutoAlternateNames = stringList(obj, "auto_alternate_names")
    out.AutoUniqueIdentifiers = stringList(obj, "auto_unique_identifiers")

    if terms, err := obj.GetObject("platform_search_terms"); err == nil {
        for key, v := range terms.Map() {
            p := domain.Platform(strings.ToLower(strings.TrimSpace(key)))
            if !knownPlatforms[p] {
                continue
            }
            vals, err := v.Array()
            if err != nil {
                continue
            }
            if list := cleanList(vals); len(list) > 0 {
                if out.PlatformSearchTerms == nil {
                    out.PlatformSearchTerms = map[domain.Platform][]string{}
                }
                out.PlatformSearchTerms[p] = list
            }
        }
    }
    return out
}

func stringList(obj *jason.Object, key string) []string {
    vals, err := obj.GetValueArray(key)
    if err != nil {
        return nil
    }
    return cleanList(vals)
}

// cleanList keeps trimmed, non-empty, reasonably short strings, first
// occurrence wins on case-insensitive duplicates.
func cleanList(vals []*jason.Value) []string {
    var out []string
    seen := map[string]bool{}
    for _, v := range vals {
        s, err := v.String()
        if err != nil {
            continue
        }
        s = strings.Join(strings.Fields(s), " ")
        if s == "" || len(s) > maxEntryLen {
            continue
        }
        k := strings.ToLower(s)
        if seen[k] {
            continue
        }
        seen[k] = true
        out = append(out, s)
        if len(out) == maxEntries {
            break
        }
    }
    return out
}
