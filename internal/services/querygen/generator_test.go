package querygen

import (
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "leakhound/internal/domain"
    "leakhound/internal/services/profiles"
)

func alphaCourse() domain.Product {
    return domain.Product{
        ID:           "prod-1",
        Name:         "Alpha Course",
        Brand:        "Alpha Labs",
        Category:     domain.CategoryCourse,
        CanonicalURL: "https://alphacourse.com/enroll",
        Price:        197,
    }
}

func TestTierSizes(t *testing.T) {
    g := New(profiles.Default(), nil)
    plan := g.Generate(alphaCourse(), domain.LearnedSignals{}, nil)

    assert.GreaterOrEqual(t, len(plan.Tier1), 8)
    assert.LessOrEqual(t, len(plan.Tier1), 15)
    assert.GreaterOrEqual(t, len(plan.Tier2), 10)
    assert.LessOrEqual(t, len(plan.Tier2), 25)
    assert.Empty(t, plan.Tier3)

    for _, q := range plan.Tier1 {
        assert.Equal(t, domain.TierBroad, q.Tier)
        assert.Equal(t, 30, q.ResultCount)
    }
    for _, q := range plan.Tier2 {
        assert.Equal(t, domain.TierTargeted, q.Tier)
        assert.Equal(t, 10, q.ResultCount)
    }
}

func TestNoDuplicateQueriesAcrossTiers(t *testing.T) {
    p := alphaCourse()
    p.AlternateNames = []string{"ALPHA   course", "Alpha Course 2.0"}
    p.Signals = domain.AISignals{
        UniquePhrases:    []string{"the alpha method", "The Alpha Method"},
        BrandIdentifiers: []string{"AlphaLabs", "alphalabs", "Alpha Academy"},
        CopyrightedTerms: []string{"Alpha Method"},
    }
    g := New(profiles.Default(), nil)
    plan := g.Generate(p, domain.LearnedSignals{Keywords: []string{"module", "bonus"}},
        []string{"https://share.example.net/a", "https://share.example.net/b"})

    seen := map[string]bool{}
    for _, q := range plan.All() {
        key := NormalizeQuery(q.Text)
        require.False(t, seen[key], "duplicate query %q", q.Text)
        seen[key] = true
    }
}

func TestGenerationIsDeterministic(t *testing.T) {
    p := alphaCourse()
    p.NegativeKeywords = []string{"review"}
    p.Signals.PlatformSearchTerms = map[domain.Platform][]string{domain.PlatformTelegram: {"alpha vault"}}
    urls := []string{"https://a.net/1", "https://a.net/2", "https://b.org/1", "https://b.org/2"}

    g := New(profiles.Default(), nil)
    first := g.Generate(p, domain.LearnedSignals{Keywords: []string{"bonus"}}, urls)
    for i := 0; i < 20; i++ {
        assert.Equal(t, first, g.Generate(p, domain.LearnedSignals{Keywords: []string{"bonus"}}, urls))
    }
}

func TestExclusionsAppended(t *testing.T) {
    p := alphaCourse()
    p.NegativeKeywords = []string{"review", "free trial"}
    p.WhitelistDomains = []string{"partner.com"}

    plan := New(profiles.Default(), nil).Generate(p, domain.LearnedSignals{}, nil)
    for _, q := range plan.Tier1 {
        assert.Contains(t, q.Text, "-review")
        assert.Contains(t, q.Text, `-"free trial"`)
        assert.Contains(t, q.Text, "-site:partner.com")
        assert.Contains(t, q.Text, "-site:alphacourse.com")
    }
    for _, q := range plan.Tier2 {
        assert.Contains(t, q.Text, "-review")
        if strings.HasPrefix(q.Text, "site:") {
            assert.NotContains(t, q.Text, "-site:")
        }
    }
}

func TestTier2Targets(t *testing.T) {
    plan := New(profiles.Default(), nil).Generate(alphaCourse(), domain.LearnedSignals{}, nil)
    texts := queryTexts(plan.Tier2)

    assert.Contains(t, texts, `site:freecourseweb.com "Alpha Course"`)
    assert.Contains(t, texts, `site:t.me "Alpha Course"`)
    assert.Contains(t, texts, `"Alpha Course" filetype:mp4 -site:alphacourse.com`)
    for _, q := range texts {
        assert.NotContains(t, q, "freetutorials.us", "dead site queried")
        assert.NotContains(t, q, "github.com", "code hosts are for software-like categories")
        assert.NotContains(t, q, "youtube.com", "social weight is below threshold for courses")
    }

    sw := alphaCourse()
    sw.Category = domain.CategorySoftware
    swPlan := New(profiles.Default(), nil).Generate(sw, domain.LearnedSignals{}, nil)
    assert.Contains(t, queryTexts(swPlan.Tier2), `site:github.com "Alpha Course"`)
}

func TestPlatformQueryCountScalesWithWeight(t *testing.T) {
    plan := New(profiles.Default(), nil).Generate(alphaCourse(), domain.LearnedSignals{}, nil)
    counts := map[string]int{}
    for _, q := range plan.Tier2 {
        counts[q.CategoryLabel]++
    }
    // cyberlocker (0.8) gets the full three, reddit (0.5) has a single host
    assert.Equal(t, 3, counts["course/platform:cyberlocker"])
    assert.Equal(t, 2, counts["course/platform:discord"])
    assert.Equal(t, 1, counts["course/platform:reddit"])
}

func TestTier1UsesVariantsAndSignals(t *testing.T) {
    p := domain.Product{
        Name:     "The Growth Blueprint 2024",
        Category: domain.CategoryCourse,
        Signals:  domain.AISignals{UniquePhrases: []string{"seven pillar growth loop"}},
    }
    plan := New(profiles.Default(), nil).Generate(p, domain.LearnedSignals{Keywords: []string{"workbook"}}, nil)
    texts := queryTexts(plan.Tier1)

    assert.Contains(t, texts, `"Growth Blueprint 2024" free download`)
    assert.Contains(t, texts, `"The Growth" free download`)
    assert.Contains(t, texts, `"The Growth Blueprint 2024" workbook`)
    assert.Contains(t, texts, `"seven pillar growth loop"`)
}

func TestDeepDiveHotDomains(t *testing.T) {
    p := alphaCourse()
    p.WhitelistDomains = []string{"reseller.io"}
    p.Signals = domain.AISignals{
        CopyrightedTerms:   []string{"Alpha Framework"},
        AutoUniqueIdentifiers: []string{"ALPHA-2291"},
        BrandIdentifiers:   []string{"AlphaLabs", "Alpha Labs", "AL Academy"},
    }
    urls := []string{
        "https://sharecourse.net/alpha", "https://dl.sharecourse.net/alpha-2", "https://www.sharecourse.net/x",
        "https://udemy.com/alpha", "https://udemy.com/alpha-2",
        "https://alphacourse.com/a", "https://alphacourse.com/b",
        "https://reseller.io/a", "https://reseller.io/b",
        "https://zippyshare.com/a", "https://zippyshare.com/b",
        "https://once.org/a",
        "https://other.biz/1", "https://other.biz/2",
    }

    g := New(profiles.Default(), nil)
    plan := g.Generate(p, domain.LearnedSignals{}, nil)
    hot := g.HotDomains(p, profiles.Default().Get(p.Category), urls)
    assert.Equal(t, []string{"sharecourse.net", "other.biz"}, hot)

    tier3 := g.DeepDive(p, plan, urls)
    texts := queryTexts(tier3)
    require.NotEmpty(t, tier3)
    assert.LessOrEqual(t, len(tier3), 10)
    assert.Contains(t, texts[0], `site:sharecourse.net "Alpha Course"`)
    assert.Contains(t, texts, `"Alpha Framework" free download -site:reseller.io -site:alphacourse.com`)
    assert.Contains(t, texts, `"ALPHA-2291" -site:reseller.io -site:alphacourse.com`)
    assert.Contains(t, texts, `"AL Academy" download -site:reseller.io -site:alphacourse.com`)
    for _, q := range tier3 {
        assert.Equal(t, domain.TierDeepDive, q.Tier)
    }
}

func TestNormalizeQuery(t *testing.T) {
    assert.Equal(t, `"alpha course" torrent`, NormalizeQuery("  \"Alpha   Course\"\tTORRENT "))
}

func queryTexts(qs []domain.GeneratedQuery) []string {
    out := make([]string, len(qs))
    for i, q := range qs {
        out[i] = q.Text
    }
    return out
}
