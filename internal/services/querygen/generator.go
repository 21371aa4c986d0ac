// Package querygen builds the three search tiers of a scan from product
// metadata, the category profile and optional learned or AI signals.
//
// Generation is deterministic: the same inputs always yield the same queries in
// the same order. Query text is deduplicated across all tiers after
// whitespace normalization and case folding.
package querygen

import (
    "fmt"
    "math"
    "regexp"
    "sort"
    "strings"

    "leakhound/internal/domain"
    "leakhound/internal/services/profiles"
    "leakhound/internal/urlx"
)

type Config struct {
    Tier1Min int
    Tier1Max int
    Tier2Max int
    Tier3Max int

    Tier1Results int
    Tier2Results int
    Tier3Results int

    MaxDedicatedSites int
    MaxPerPlatform    int
    MaxFileExtensions int
    PlatformThreshold float64
    HotDomainMinHits  int
    MaxHotDomains     int
}

func DefaultConfig() Config {
    return Config{
        Tier1Min:          8,
        Tier1Max:          15,
        Tier2Max:          25,
        Tier3Max:          10,
        Tier1Results:      30,
        Tier2Results:      10,
        Tier3Results:      10,
        MaxDedicatedSites: 6,
        MaxPerPlatform:    3,
        MaxFileExtensions: 3,
        PlatformThreshold: 0.5,
        HotDomainMinHits:  2,
        MaxHotDomains:     4,
    }
}

// Plan is the query set of one run.
type Plan struct {
    Tier1 []domain.GeneratedQuery
    Tier2 []domain.GeneratedQuery
    Tier3 []domain.GeneratedQuery
}

func (p Plan) All() []domain.GeneratedQuery {
    out := make([]domain.GeneratedQuery, 0, len(p.Tier1)+len(p.Tier2)+len(p.Tier3))
    out = append(out, p.Tier1...)
    out = append(out, p.Tier2...)
    return append(out, p.Tier3...)
}

type Generator struct {
    registry *profiles.Registry
    cfg      Config
}

// New accepts a nil cfg and falls back to DefaultConfig.
func New(registry *profiles.Registry, cfg *Config) *Generator {
    c := DefaultConfig()
    if cfg != nil {
        c = *cfg
    }
    return &Generator{registry: registry, cfg: c}
}

// Generate builds Tier 1 and Tier 2. Tier 3 is built as well when priorHitURLs
// is non-empty; otherwise call DeepDive once earlier tiers have results.
func (g *Generator) Generate(product domain.Product, learned domain.LearnedSignals, priorHitURLs []string) Plan {
    profile := g.registry.Get(product.Category)
    seen := newDeduper()
    excl := exclusions(product)

    plan := Plan{
        Tier1: g.tier1(product, profile, learned, excl, seen),
        Tier2: g.tier2(product, profile, excl, seen),
    }
    if len(priorHitURLs) > 0 {
        plan.Tier3 = g.tier3(product, profile, priorHitURLs, excl, seen)
    }
    return plan
}

// DeepDive builds Tier 3 from the URLs found by the plan's earlier tiers. It
// never repeats a query already present in plan.
func (g *Generator) DeepDive(product domain.Product, plan Plan, hitURLs []string) []domain.GeneratedQuery {
    profile := g.registry.Get(product.Category)
    seen := newDeduper()
    for _, q := range plan.Tier1 {
        seen.mark(q.Text)
    }
    for _, q := range plan.Tier2 {
        seen.mark(q.Text)
    }
    return g.tier3(product, profile, hitURLs, exclusions(product), seen)
}

func (g *Generator) tier1(product domain.Product, profile domain.ScanProfile, learned domain.LearnedSignals, excl exclusionSet, seen *deduper) []domain.GeneratedQuery {
    b := &tierBuilder{tier: domain.TierBroad, results: g.cfg.Tier1Results, max: g.cfg.Tier1Max, seen: seen, excl: excl, category: product.Category}
    name := strings.TrimSpace(product.Name)
    terms := profile.PiracyTerms
    first := firstOr(terms, "free download")

    for _, t := range head(terms, 4) {
        b.add(quote(name)+" "+t, "name+piracy", false)
    }
    for _, v := range nameVariants(product)[1:] {
        b.add(quote(v)+" "+first, "variant", false)
    }
    for _, alt := range head(product.AlternateNames, 2) {
        b.add(quote(alt)+" "+first, "alt_name", false)
    }
    for _, kw := range head(learned.Keywords, 3) {
        b.add(quote(name)+" "+kw, "learned", false)
    }
    sig := product.Signals
    for _, ph := range head(sig.UniquePhrases, 2) {
        b.add(quote(ph), "ai_phrase", false)
    }
    for _, bi := range head(sig.BrandIdentifiers, 2) {
        b.add(quote(bi)+" "+first, "ai_brand", false)
    }
    for _, id := range head(product.UniqueIdentifiers, 2) {
        b.add(quote(id), "identifier", false)
    }
    for i := 4; i < len(terms) && len(b.out) < g.cfg.Tier1Min; i++ {
        b.add(quote(name)+" "+terms[i], "name+piracy", false)
    }
    return b.out
}

func (g *Generator) tier2(product domain.Product, profile domain.ScanProfile, excl exclusionSet, seen *deduper) []domain.GeneratedQuery {
    b := &tierBuilder{tier: domain.TierTargeted, results: g.cfg.Tier2Results, max: g.cfg.Tier2Max, seen: seen, excl: excl, category: product.Category}
    name := quote(strings.TrimSpace(product.Name))

    for _, site := range head(g.registry.Live(profile.DedicatedSites), g.cfg.MaxDedicatedSites) {
        b.add("site:"+site+" "+name, "dedicated_site", true)
    }

    for _, pw := range rankedPlatforms(profile.PlatformWeights) {
        if pw.weight < g.cfg.PlatformThreshold {
            break
        }
        if pw.platform == domain.PlatformCode && !profiles.IsSoftwareLike(product.Category) {
            continue
        }
        sites := g.registry.PlatformSites(pw.platform)
        n := int(math.Ceil(pw.weight * float64(g.cfg.MaxPerPlatform)))
        label := "platform:" + string(pw.platform)
        extra := product.Signals.PlatformSearchTerms[pw.platform]
        for _, site := range head(sites, n) {
            b.add("site:"+site+" "+name, label, true)
            if len(extra) > 0 {
                b.add("site:"+site+" "+quote(extra[0]), label, true)
            }
        }
    }

    for _, ext := range head(profile.FileExtensions, g.cfg.MaxFileExtensions) {
        b.add(name+" filetype:"+ext, "filetype", false)
    }
    return b.out
}

func (g *Generator) tier3(product domain.Product, profile domain.ScanProfile, hitURLs []string, excl exclusionSet, seen *deduper) []domain.GeneratedQuery {
    b := &tierBuilder{tier: domain.TierDeepDive, results: g.cfg.Tier3Results, max: g.cfg.Tier3Max, seen: seen, excl: excl, category: product.Category}
    name := quote(strings.TrimSpace(product.Name))
    first := firstOr(profile.PiracyTerms, "free download")

    for _, d := range g.HotDomains(product, profile, hitURLs) {
        b.add("site:"+d+" "+name+" "+first, "hot_domain", true)
    }
    sig := product.Signals
    for _, t := range head(sig.CopyrightedTerms, 2) {
        b.add(quote(t)+" "+first, "ai_copyright", false)
    }
    for _, alt := range head(sig.AutoAlternateNames, 2) {
        b.add(quote(alt)+" "+first, "ai_alt_name", false)
    }
    for _, id := range head(sig.AutoUniqueIdentifiers, 2) {
        b.add(quote(id), "ai_identifier", false)
    }
    if len(sig.BrandIdentifiers) > 2 {
        for _, bi := range head(sig.BrandIdentifiers[2:], 2) {
            b.add(quote(bi)+" download", "ai_brand_unused", false)
        }
    }
    return b.out
}

// HotDomains returns registrable domains with at least HotDomainMinHits hits,
// excluding legitimate, official, whitelisted and dead domains. Most hits
// first, ties broken by name.
func (g *Generator) HotDomains(product domain.Product, profile domain.ScanProfile, hitURLs []string) []string {
    counts := map[string]int{}
    for _, u := range hitURLs {
        host := urlx.Host(u)
        if host == "" {
            continue
        }
        counts[urlx.Registrable(host)]++
    }

    excluded := append([]string{}, profile.LegitimateSites...)
    excluded = append(excluded, product.WhitelistDomains...)
    if official := urlx.Host(product.CanonicalURL); official != "" {
        excluded = append(excluded, urlx.Registrable(official))
    }

    type dc struct {
        domain string
        count  int
    }
    var hot []dc
    for d, c := range counts {
        if c < g.cfg.HotDomainMinHits || g.registry.IsDead(d) {
            continue
        }
        if _, ok := urlx.MatchesAny(d, excluded); ok {
            continue
        }
        hot = append(hot, dc{d, c})
    }
    sort.Slice(hot, func(i, j int) bool {
        if hot[i].count != hot[j].count {
            return hot[i].count > hot[j].count
        }
        return hot[i].domain < hot[j].domain
    })

    out := make([]string, 0, g.cfg.MaxHotDomains)
    for _, h := range head(hot, g.cfg.MaxHotDomains) {
        out = append(out, h.domain)
    }
    return out
}

type tierBuilder struct {
    tier     domain.Tier
    results  int
    max      int
    category domain.Category
    seen     *deduper
    excl     exclusionSet
    out      []domain.GeneratedQuery
}

func (b *tierBuilder) add(text, label string, siteScoped bool) {
    if len(b.out) >= b.max {
        return
    }
    text = b.excl.apply(strings.TrimSpace(text), siteScoped)
    if !b.seen.mark(text) {
        return
    }
    b.out = append(b.out, domain.GeneratedQuery{
        Text:          text,
        Tier:          b.tier,
        ResultCount:   b.results,
        CategoryLabel: fmt.Sprintf("%s/%s", b.category, label),
    })
}

type deduper struct{ seen map[string]struct{} }

func newDeduper() *deduper { return &deduper{seen: map[string]struct{}{}} }

// mark records text and reports whether it was new.
func (d *deduper) mark(text string) bool {
    key := NormalizeQuery(text)
    if key == "" {
        return false
    }
    if _, ok := d.seen[key]; ok {
        return false
    }
    d.seen[key] = struct{}{}
    return true
}

// NormalizeQuery folds case and collapses whitespace.
func NormalizeQuery(q string) string {
    return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

type exclusionSet struct {
    keywords []string
    sites    []string
}

func exclusions(product domain.Product) exclusionSet {
    var e exclusionSet
    seen := map[string]bool{}
    for _, kw := range product.NegativeKeywords {
        kw = strings.TrimSpace(kw)
        if kw == "" || seen["kw:"+strings.ToLower(kw)] {
            continue
        }
        seen["kw:"+strings.ToLower(kw)] = true
        if strings.ContainsAny(kw, " \t") {
            e.keywords = append(e.keywords, "-"+quote(kw))
        } else {
            e.keywords = append(e.keywords, "-"+kw)
        }
    }
    domains := append([]string{}, product.WhitelistDomains...)
    domains = append(domains, product.CanonicalURL)
    for _, d := range domains {
        host := urlx.Host(d)
        if host == "" || seen["site:"+host] {
            continue
        }
        seen["site:"+host] = true
        e.sites = append(e.sites, "-site:"+host)
    }
    return e
}

func (e exclusionSet) apply(q string, siteScoped bool) string {
    parts := []string{q}
    parts = append(parts, e.keywords...)
    if !siteScoped {
        parts = append(parts, e.sites...)
    }
    return strings.Join(parts, " ")
}

var (
    leadingArticle = regexp.MustCompile(`(?i)^(the|a|an)\s+`)
    versionSuffix  = regexp.MustCompile(`(?i)\s+(v?\d+(\.\d+)*|(19|20)\d{2})$`)
    genericSuffix  = regexp.MustCompile(`(?i)\s+(course|masterclass|bundle|pro|edition|program|academy|bootcamp|system|blueprint|kit|pack|templates?|ebook|book|guide)$`)
)

// nameVariants returns the product name first, followed by its distinct
// variants.
func nameVariants(product domain.Product) []string {
    name := strings.Join(strings.Fields(product.Name), " ")
    out := []string{name}
    add := func(v string) {
        v = strings.TrimSpace(v)
        if v == "" {
            return
        }
        for _, o := range out {
            if strings.EqualFold(o, v) {
                return
            }
        }
        out = append(out, v)
    }

    add(leadingArticle.ReplaceAllString(name, ""))
    stripped := name
    for {
        next := genericSuffix.ReplaceAllString(versionSuffix.ReplaceAllString(stripped, ""), "")
        if next == stripped {
            break
        }
        stripped = next
    }
    add(stripped)
    if words := strings.Fields(name); len(words) >= 2 && len(words) <= 3 {
        add(strings.Join(words, ""))
    }
    brand := strings.TrimSpace(product.Brand)
    if brand != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(brand)) {
        add(brand + " " + name)
    }
    return out
}

type platformWeight struct {
    platform domain.Platform
    weight   float64
}

func rankedPlatforms(weights map[domain.Platform]float64) []platformWeight {
    out := make([]platformWeight, 0, len(weights))
    for p, w := range weights {
        out = append(out, platformWeight{p, w})
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].weight != out[j].weight {
            return out[i].weight > out[j].weight
        }
        return out[i].platform < out[j].platform
    })
    return out
}

func quote(s string) string {
    s = strings.Trim(strings.TrimSpace(s), `"`)
    return `"` + s + `"`
}

func head[T any](s []T, n int) []T {
    if n < 0 {
        n = 0
    }
    if len(s) > n {
        return s[:n]
    }
    return s
}

func firstOr(s []string, def string) string {
    if len(s) > 0 {
        return s[0]
    }
    return def
}
