// Package scoring turns raw search hits into scored, classified results.
package scoring

import (
    "fmt"
    "strings"

    "leakhound/internal/domain"
    "leakhound/internal/services/delta"
    "leakhound/internal/services/profiles"
    "leakhound/internal/urlx"
)

const (
    baseScore = 40

    topThreeBonus = 10
    topTenBonus   = 5

    strongPlatformBonus = 8
    goodPlatformBonus   = 4
    weakPlatformPenalty = -5

    boostPoints     = 5
    maxBoostMatches = 3
    penaltyPoints   = -15

    dedicatedSiteBonus = 15
    legitimateSitePts  = -30
    officialDomainPts  = -50
    whitelistPts       = -50
    nameInTitleBonus   = 10
    fileExtensionBonus = 5

    // FalsePositiveBelow is the confidence under which a result is not kept.
    FalsePositiveBelow = 30
)

var tierBonus = map[domain.Tier]int{
    domain.TierBroad:    5,
    domain.TierTargeted: 10,
    domain.TierDeepDive: 15,
}

type Scorer struct {
    registry *profiles.Registry
}

func New(registry *profiles.Registry) *Scorer {
    if registry == nil {
        registry = profiles.Default()
    }
    return &Scorer{registry: registry}
}

// Score scores a single hit. Use ScoreAll for many hits of one product.
func (s *Scorer) Score(hit domain.SearchHit, product domain.Product) domain.ScoredResult {
    return s.score(hit, product, s.registry.Get(product.Category))
}

func (s *Scorer) ScoreAll(hits []domain.SearchHit, product domain.Product) []domain.ScoredResult {
    profile := s.registry.Get(product.Category)
    out := make([]domain.ScoredResult, 0, len(hits))
    for _, h := range hits {
        out = append(out, s.score(h, product, profile))
    }
    return out
}

func (s *Scorer) score(hit domain.SearchHit, product domain.Product, profile domain.ScanProfile) domain.ScoredResult {
    var (
        score   = baseScore
        reasons []string
        legit   bool
    )
    add := func(points int, reason string) {
        score += points
        reasons = append(reasons, fmt.Sprintf("%s(%+d)", reason, points))
    }

    switch {
    case hit.Position >= 1 && hit.Position <= 3:
        add(topThreeBonus, "position_top3")
    case hit.Position >= 4 && hit.Position <= 10:
        add(topTenBonus, "position_top10")
    }
    if b, ok := tierBonus[hit.Tier]; ok {
        add(b, fmt.Sprintf("tier%d", hit.Tier))
    }

    platform := ClassifyPlatform(hit.Link)
    if w, ok := profile.PlatformWeights[platform]; ok {
        switch {
        case w >= 0.8:
            add(strongPlatformBonus, "platform_weight:"+string(platform))
        case w >= 0.6:
            add(goodPlatformBonus, "platform_weight:"+string(platform))
        case w < 0.4:
            add(weakPlatformPenalty, "platform_weight:"+string(platform))
        }
    }

    text := strings.ToLower(hit.Title + " " + hit.Snippet + " " + hit.Link)
    boosts := 0
    for _, term := range profile.BoostTerms {
        if boosts == maxBoostMatches {
            break
        }
        if containsTerm(text, term) {
            add(boostPoints, "boost:"+term)
            boosts++
        }
    }
    for _, term := range profile.PenaltyTerms {
        if containsTerm(text, term) {
            add(penaltyPoints, "penalty:"+term)
        }
    }

    host := urlx.Host(hit.Link)
    if d, ok := urlx.MatchesAny(host, s.registry.Live(profile.DedicatedSites)); ok {
        add(dedicatedSiteBonus, "dedicated_site:"+d)
    }
    if d, ok := urlx.MatchesAny(host, profile.LegitimateSites); ok {
        add(legitimateSitePts, "legitimate_site:"+d)
        legit = true
    }
    if official := officialDomain(product); official != "" && urlx.MatchesDomain(host, official) {
        add(officialDomainPts, "official_domain:"+official)
        legit = true
    }
    if w, ok := whitelisted(hit.Link, host, product); ok {
        add(whitelistPts, "whitelist:"+w)
        legit = true
    }

    if name := strings.TrimSpace(product.Name); name != "" && strings.Contains(strings.ToLower(hit.Title), strings.ToLower(name)) {
        add(nameInTitleBonus, "name_in_title")
    }
    if ext, ok := fileExtension(strings.ToLower(hit.Link+" "+hit.Snippet), profile.FileExtensions); ok {
        add(fileExtensionBonus, "file_extension:"+ext)
    }

    score = min(max(score, 0), 100)
    audience := EstimateAudience(platform, hit.Position, score)
    return domain.ScoredResult{
        Hit:              hit,
        Confidence:       score,
        RiskLevel:        RiskFor(score),
        Platform:         platform,
        InfringementType: InfringementType(hit, platform, profile.FileExtensions),
        AudienceEstimate: audience,
        RevenueLoss:      EstimateRevenueLoss(platform, audience, product.Price),
        IsFalsePositive:  legit || score < FalsePositiveBelow,
        Reasons:          reasons,
    }
}

// Excluded reports whether hit is on the product's own site or the owner's
// whitelist. Such hits are dropped before scoring.
func Excluded(hit domain.SearchHit, product domain.Product) bool {
    host := urlx.Host(hit.Link)
    if official := officialDomain(product); official != "" && urlx.MatchesDomain(host, official) {
        return true
    }
    _, ok := whitelisted(hit.Link, host, product)
    return ok
}

// RiskFor maps a confidence to its risk level.
func RiskFor(confidence int) domain.RiskLevel {
    switch {
    case confidence >= 80:
        return domain.RiskCritical
    case confidence >= 60:
        return domain.RiskHigh
    case confidence >= 40:
        return domain.RiskMedium
    }
    return domain.RiskLow
}

func officialDomain(p domain.Product) string {
    host := urlx.Host(p.CanonicalURL)
    if host == "" {
        return ""
    }
    return urlx.Registrable(host)
}

// whitelisted matches user whitelist domains by host and whitelist URLs by
// normalized prefix.
func whitelisted(link, host string, p domain.Product) (string, bool) {
    if d, ok := urlx.MatchesAny(host, p.WhitelistDomains); ok {
        return d, true
    }
    norm := delta.Normalize(link)
    for _, u := range p.WhitelistURLs {
        prefix := delta.Normalize(u)
        if prefix != "" && strings.HasPrefix(norm, prefix) {
            return u, true
        }
    }
    return "", false
}

// containsTerm matches term on word boundaries.
func containsTerm(text, term string) bool {
    term = strings.ToLower(strings.TrimSpace(term))
    if term == "" {
        return false
    }
    for from := 0; ; {
        i := strings.Index(text[from:], term)
        if i < 0 {
            return false
        }
        start := from + i
        end := start + len(term)
        if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
            return true
        }
        from = start + 1
    }
}

func fileExtension(text string, exts []string) (string, bool) {
    for _, ext := range exts {
        needle := "." + strings.ToLower(ext)
        for from := 0; ; {
            i := strings.Index(text[from:], needle)
            if i < 0 {
                break
            }
            end := from + i + len(needle)
            if end == len(text) || !isWordByte(text[end]) {
                return ext, true
            }
            from = end
        }
    }
    return "", false
}

func isWordByte(b byte) bool {
    return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
