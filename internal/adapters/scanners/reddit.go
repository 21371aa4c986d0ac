package scanners

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"

    "github.com/antonholmquist/jason"

    "leakhound/internal/domain"
)

const redditSearchURL = "https://www.reddit.com/search.json"

// Reddit searches posts through the public JSON listing. Each request is one
// page of results; pages follow the listing's "after" cursor.
type Reddit struct {
    endpoint string
    client   *http.Client
    pageSize int
}

func NewReddit() *Reddit {
    return &Reddit{endpoint: redditSearchURL, client: &http.Client{Timeout: requestTimeout}, pageSize: 25}
}

func (r *Reddit) Platform() domain.Platform { return domain.PlatformReddit }

func (r *Reddit) Scan(ctx context.Context, product domain.Product, budget int) ([]domain.SearchHit, int, error) {
    terms := searchTerms(product, domain.PlatformReddit)
    if budget <= 0 || len(terms) == 0 {
        return nil, 0, nil
    }

    var (
        hits  []domain.SearchHit
        used  int
        errs  []error
        seen  = map[string]bool{}
        after = map[string]string{}
        done  = map[string]bool{}
    )
    for used < budget {
        progressed := false
        for _, term := range terms {
            if used == budget || ctx.Err() != nil {
                break
            }
            if done[term] {
                continue
            }
            progressed = true
            used++
            page, next, err := r.fetch(ctx, term, after[term])
            if err != nil {
                errs = append(errs, err)
                done[term] = true
                continue
            }
            for _, h := range page {
                if seen[h.Link] {
                    continue
                }
                seen[h.Link] = true
                h.Position = len(hits) + 1
                h.Query = term
                hits = append(hits, h)
            }
            if next == "" {
                done[term] = true
            }
            after[term] = next
        }
        if !progressed || ctx.Err() != nil {
            break
        }
    }
    if len(hits) == 0 && len(errs) > 0 {
        return nil, used, errors.Join(errs...)
    }
    return hits, used, nil
}

func (r *Reddit) fetch(ctx context.Context, term, after string) ([]domain.SearchHit, string, error) {
    q := url.Values{}
    q.Set("q", `"`+term+`"`)
    q.Set("limit", fmt.Sprint(r.pageSize))
    q.Set("sort", "new")
    if after != "" {
        q.Set("after", after)
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?"+q.Encode(), nil)
    if err != nil {
        return nil, "", err
    }
    req.Header.Set("User-Agent", userAgent)
    resp, err := r.client.Do(req)
    if err != nil {
        return nil, "", err
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return nil, "", fmt.Errorf("reddit search returned %d", resp.StatusCode)
    }
    body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
    if err != nil {
        return nil, "", err
    }
    return parseListing(body)
}

// parseListing reads a Reddit listing. Children missing a permalink are
// skipped rather than failing the page.
func parseListing(body []byte) ([]domain.SearchHit, string, error) {
    obj, err := jason.NewObjectFromBytes(body)
    if err != nil {
        return nil, "", fmt.Errorf("parse reddit listing: %w", err)
    }
    children, err := obj.GetObjectArray("data", "children")
    if err != nil {
        return nil, "", fmt.Errorf("reddit listing children: %w", err)
    }
    var hits []domain.SearchHit
    for _, child := range children {
        permalink, err := child.GetString("data", "permalink")
        if err != nil || permalink == "" {
            continue
        }
        title, _ := child.GetString("data", "title")
        snippet, _ := child.GetString("data", "selftext")
        if snippet == "" {
            // link posts carry the shared URL instead of a body
            snippet, _ = child.GetString("data", "url")
        }
        if runes := []rune(snippet); len(runes) > 300 {
            snippet = string(runes[:300])
        }
        hits = append(hits, domain.SearchHit{
            Title:   title,
            Link:    "https://www.reddit.com" + strings.TrimSuffix(permalink, "/"),
            Snippet: snippet,
        })
    }
    next, _ := obj.GetString("data", "after")
    return hits, next, nil
}
