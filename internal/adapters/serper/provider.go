// Package serper is a search provider speaking the Serper web search API.
package serper

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"

    "github.com/k3a/html2text"

    "leakhound/internal/domain"
)

const DefaultEndpoint = "https://google.serper.dev/search"

type Provider struct {
    endpoint string
    apiKey   string
    client   *http.Client
}

// New returns a provider. Timeouts come from the caller's context.
func New(endpoint, apiKey string) *Provider {
    if endpoint == "" {
        endpoint = DefaultEndpoint
    }
    return &Provider{endpoint: endpoint, apiKey: apiKey, client: &http.Client{}}
}

type searchRequest struct {
    Q   string `json:"q"`
    Num int    `json:"num"`
}

type organicResult struct {
    Title    string `json:"title"`
    Link     string `json:"link"`
    Snippet  string `json:"snippet"`
    Position int    `json:"position"`
}

type searchResponse struct {
    Organic []organicResult `json:"organic"`
}

func (p *Provider) Search(ctx context.Context, query string, numResults int) ([]domain.SearchHit, error) {
    if p.apiKey == "" {
        return nil, fmt.Errorf("search api key not configured")
    }
    body, err := json.Marshal(searchRequest{Q: query, Num: numResults})
    if err != nil { return nil, err }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
    if err != nil { return nil, err }
    req.Header.Set("X-API-KEY", p.apiKey)
    req.Header.Set("Content-Type", "application/json")

    resp, err := p.client.Do(req)
    if err != nil { return nil, err }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
        return nil, fmt.Errorf("search provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
    }

    var out searchResponse
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return nil, fmt.Errorf("decode search response: %w", err)
    }

    hits := make([]domain.SearchHit, 0, len(out.Organic))
    for i, r := range out.Organic {
        if strings.TrimSpace(r.Link) == "" {
            continue
        }
        pos := r.Position
        if pos <= 0 {
            pos = i + 1
        }
        hits = append(hits, domain.SearchHit{
            Title:    cleanText(r.Title),
            Link:     strings.TrimSpace(r.Link),
            Snippet:  cleanText(r.Snippet),
            Position: pos,
        })
    }
    return hits, nil
}

// cleanText drops markup the provider sometimes leaves in titles and snippets.
func cleanText(s string) string {
    if !strings.ContainsAny(s, "<&") {
        return strings.TrimSpace(s)
    }
    return strings.Join(strings.Fields(html2text.HTML2Text(s)), " ")
}
