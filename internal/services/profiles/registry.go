package profiles

import (
    "maps"
    "slices"
    "strings"

    "leakhound/internal/domain"
)

// Registry resolves scan profiles by category. It is built once and never
// mutated; every accessor hands out copies.
type Registry struct {
    profiles      map[domain.Category]domain.ScanProfile
    fallback      domain.ScanProfile
    platformSites map[domain.Platform][]string
    dead          map[string]struct{}
}

// New builds a registry from the given profiles. Inputs are copied.
func New(profiles map[domain.Category]domain.ScanProfile, fallback domain.ScanProfile, platformSites map[domain.Platform][]string, dead []string) *Registry {
    r := &Registry{
        profiles:      make(map[domain.Category]domain.ScanProfile, len(profiles)),
        fallback:      cloneProfile(fallback),
        platformSites: make(map[domain.Platform][]string, len(platformSites)),
        dead:          make(map[string]struct{}, len(dead)),
    }
    for c, p := range profiles {
        r.profiles[c] = cloneProfile(p)
    }
    for p, sites := range platformSites {
        r.platformSites[p] = slices.Clone(sites)
    }
    for _, d := range dead {
        r.dead[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
    }
    return r
}

// Default returns the registry of built-in category profiles.
func Default() *Registry {
    return New(builtin, fallbackProfile, platformSites, deadSites)
}

// Get returns the profile for category, or the default profile for unknown
// categories.
func (r *Registry) Get(category domain.Category) domain.ScanProfile {
    if p, ok := r.profiles[category]; ok {
        return cloneProfile(p)
    }
    return cloneProfile(r.fallback)
}

// PlatformSites returns the live hosts used to scope queries to a platform.
func (r *Registry) PlatformSites(p domain.Platform) []string {
    return r.Live(r.platformSites[p])
}

// IsDead reports whether host, or a parent domain of it, is known defunct.
func (r *Registry) IsDead(host string) bool {
    host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
    for host != "" {
        if _, ok := r.dead[host]; ok {
            return true
        }
        i := strings.IndexByte(host, '.')
        if i < 0 {
            break
        }
        host = host[i+1:]
    }
    return false
}

// Live filters dead hosts out of sites, preserving order.
func (r *Registry) Live(sites []string) []string {
    out := make([]string, 0, len(sites))
    for _, s := range sites {
        if !r.IsDead(s) {
            out = append(out, s)
        }
    }
    return out
}

// IsSoftwareLike reports whether code repositories are a plausible leak
// channel for the category.
func IsSoftwareLike(c domain.Category) bool {
    switch c {
    case domain.CategorySoftware, domain.CategoryTemplate, domain.CategoryFont:
        return true
    }
    return false
}

func cloneProfile(p domain.ScanProfile) domain.ScanProfile {
    return domain.ScanProfile{
        Category:        p.Category,
        PiracyTerms:     slices.Clone(p.PiracyTerms),
        FileExtensions:  slices.Clone(p.FileExtensions),
        DedicatedSites:  slices.Clone(p.DedicatedSites),
        LegitimateSites: slices.Clone(p.LegitimateSites),
        BoostTerms:      slices.Clone(p.BoostTerms),
        PenaltyTerms:    slices.Clone(p.PenaltyTerms),
        PlatformWeights: maps.Clone(p.PlatformWeights),
    }
}
