package scanners

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "net/url"
    "strconv"
    "strings"

    "github.com/PuerkitoBio/goquery"

    "leakhound/internal/domain"
)

// Site is one searchable HTML index. SearchURL carries {query} and {page}
// placeholders; Selector picks the result anchors on a result page.
type Site struct {
    Name      string
    SearchURL string
    Selector  string
    FirstPage int
}

// DefaultSites are the indexes scanned when none are configured.
var DefaultSites = map[domain.Platform][]Site{
    domain.PlatformTorrent: {
        {Name: "1337x", SearchURL: "https://1337x.to/search/{query}/{page}/", Selector: "td.name a[href^='/torrent/']", FirstPage: 1},
        {Name: "nyaa", SearchURL: "https://nyaa.si/?q={query}&p={page}", Selector: "td[colspan] a[href^='/view/']:not(.comments)", FirstPage: 1},
    },
    domain.PlatformForum: {
        {Name: "blackhatworld", SearchURL: "https://www.blackhatworld.com/search/search?keywords={query}&page={page}", Selector: "h3.contentRow-title a", FirstPage: 1},
    },
}

// HTMLIndex scans HTML search pages of one platform.
type HTMLIndex struct {
    platform domain.Platform
    sites    []Site
    client   *http.Client
}

func NewHTMLIndex(platform domain.Platform, sites []Site) *HTMLIndex {
    return &HTMLIndex{platform: platform, sites: sites, client: &http.Client{Timeout: requestTimeout}}
}

func (s *HTMLIndex) Platform() domain.Platform { return s.platform }

type pageRequest struct {
    site Site
    term string
    page int
}

// plan orders requests breadth first: every site and term on the first page
// before any second page.
func (s *HTMLIndex) plan(terms []string, budget int) []pageRequest {
    var out []pageRequest
    for page := 0; len(out) < budget && page < budget; page++ {
        for _, term := range terms {
            for _, site := range s.sites {
                if len(out) == budget {
                    return out
                }
                out = append(out, pageRequest{site: site, term: term, page: site.FirstPage + page})
            }
        }
    }
    return out
}

func (s *HTMLIndex) Scan(ctx context.Context, product domain.Product, budget int) ([]domain.SearchHit, int, error) {
    terms := searchTerms(product, s.platform)
    if budget <= 0 || len(terms) == 0 || len(s.sites) == 0 {
        return nil, 0, nil
    }

    var (
        hits   []domain.SearchHit
        used   int
        errs   []error
        seen   = map[string]bool{}
        failed = map[string]bool{}
    )
    for _, req := range s.plan(terms, budget) {
        if ctx.Err() != nil {
            errs = append(errs, ctx.Err())
            break
        }
        // a site that failed once is not retried on later pages
        if failed[req.site.Name] {
            continue
        }
        used++
        page, err := s.fetch(ctx, req)
        if err != nil {
            failed[req.site.Name] = true
            errs = append(errs, fmt.Errorf("%s: %w", req.site.Name, err))
            continue
        }
        for _, h := range page {
            if seen[h.Link] {
                continue
            }
            seen[h.Link] = true
            h.Query = req.term
            hits = append(hits, h)
        }
    }
    if len(hits) == 0 && len(errs) > 0 {
        return nil, used, errors.Join(errs...)
    }
    return hits, used, nil
}

func (s *HTMLIndex) fetch(ctx context.Context, req pageRequest) ([]domain.SearchHit, error) {
    raw := strings.NewReplacer(
        "{query}", url.QueryEscape(req.term),
        "{page}", strconv.Itoa(req.page),
    ).Replace(req.site.SearchURL)
    base, err := url.Parse(raw)
    if err != nil {
        return nil, err
    }

    httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
    if err != nil {
        return nil, err
    }
    httpReq.Header.Set("User-Agent", userAgent)
    resp, err := s.client.Do(httpReq)
    if err != nil {
        return nil, err
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return nil, fmt.Errorf("status %d", resp.StatusCode)
    }

    doc, err := goquery.NewDocumentFromReader(resp.Body)
    if err != nil {
        return nil, err
    }
    var hits []domain.SearchHit
    doc.Find(req.site.Selector).Each(func(i int, sel *goquery.Selection) {
        href, ok := sel.Attr("href")
        if !ok || strings.TrimSpace(href) == "" {
            return
        }
        ref, err := url.Parse(strings.TrimSpace(href))
        if err != nil {
            return
        }
        hits = append(hits, domain.SearchHit{
            Title:    strings.Join(strings.Fields(sel.Text()), " "),
            Link:     base.ResolveReference(ref).String(),
            Position: len(hits) + 1,
        })
    })
    return hits, nil
}
