// Package learning derives high-signal keywords from a product's verified
// detections so later runs can search for them.
package learning

import (
    "context"
    "sort"
    "strings"
    "time"
    "unicode"

    "github.com/patrickmn/go-cache"

    "leakhound/internal/domain"
    "leakhound/internal/ports"
)

const (
    DefaultTTL    = time.Hour
    titleSample   = 50
    maxKeywords   = 5
    minTokenRunes = 4
)

var stopWords = map[string]bool{
    "free": true, "download": true, "with": true, "from": true, "your": true,
    "this": true, "that": true, "full": true, "course": true, "version": true,
    "online": true, "best": true, "complete": true, "guide": true, "http": true,
    "https": true, "www": true, "html": true, "page": true, "have": true,
    "will": true, "what": true, "about": true, "more": true, "into": true,
}

type Store struct {
    repo  ports.InfringementRepository
    cache *cache.Cache
}

func New(repo ports.InfringementRepository, ttl time.Duration) *Store {
    if ttl <= 0 {
        ttl = DefaultTTL
    }
    return &Store{repo: repo, cache: cache.New(ttl, 2*ttl)}
}

// Learned returns the cached keywords for product, computing them from
// verified titles on a miss.
func (s *Store) Learned(ctx context.Context, product domain.Product) (domain.LearnedSignals, error) {
    if v, ok := s.cache.Get(product.ID); ok {
        return v.(domain.LearnedSignals), nil
    }
    titles, err := s.repo.VerifiedTitles(ctx, product.ID, titleSample)
    if err != nil {
        return domain.LearnedSignals{}, err
    }
    learned := domain.LearnedSignals{Keywords: Extract(titles, product.Name, maxKeywords)}
    s.cache.Set(product.ID, learned, cache.DefaultExpiration)
    return learned, nil
}

// Forget drops the cached keywords of a product.
func (s *Store) Forget(productID string) { s.cache.Delete(productID) }

// Extract ranks title tokens by frequency, then lexically, skipping short
// tokens, stop words and words of the product name. A token counts once per
// title.
func Extract(titles []string, productName string, n int) []string {
    skip := map[string]bool{}
    for _, w := range tokens(productName) {
        skip[w] = true
    }
    counts := map[string]int{}
    for _, title := range titles {
        seen := map[string]bool{}
        for _, w := range tokens(title) {
            if seen[w] || skip[w] || stopWords[w] || len([]rune(w)) < minTokenRunes {
                continue
            }
            seen[w] = true
            counts[w]++
        }
    }

    words := make([]string, 0, len(counts))
    for w := range counts {
        words = append(words, w)
    }
    sort.Slice(words, func(i, j int) bool {
        if counts[words[i]] != counts[words[j]] {
            return counts[words[i]] > counts[words[j]]
        }
        return words[i] < words[j]
    })
    if len(words) > n {
        words = words[:n]
    }
    return words
}

func tokens(s string) []string {
    return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
        return !unicode.IsLetter(r) && !unicode.IsDigit(r)
    })
}
