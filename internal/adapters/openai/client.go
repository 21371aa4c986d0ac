// Package openai implements the completion port against the OpenAI chat
// completions API.
package openai

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "leakhound/internal/domain"
)

const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// RequestTimeout bounds one completion call.
const RequestTimeout = 60 * time.Second

type message struct {
    Role    string `json:"role"`
    Content string `json:"content"`
}

type responseFormat struct {
    Type string `json:"type"`
}

type chatRequest struct {
    Model          string          `json:"model"`
    Messages       []message       `json:"messages"`
    Temperature    float64         `json:"temperature"`
    MaxTokens      int             `json:"max_tokens,omitempty"`
    ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
    Choices []struct {
        Message struct {
            Content string `json:"content"`
        } `json:"message"`
    } `json:"choices"`
}

type Client struct {
    apiKey   string
    model    string
    endpoint string
    client   *http.Client
}

func NewClient(apiKey, model string) *Client {
    return &Client{
        apiKey:   apiKey,
        model:    model,
        endpoint: DefaultEndpoint,
        client:   &http.Client{Timeout: RequestTimeout},
    }
}

// WithEndpoint points the client at a compatible API.
func (c *Client) WithEndpoint(endpoint string) *Client {
    c.endpoint = endpoint
    return c
}

// Complete returns the raw content of the first choice. Callers must treat it
// as untrusted.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, opts domain.CompletionOptions) (string, error) {
    model := opts.Model
    if model == "" {
        model = c.model
    }
    reqBody := chatRequest{
        Model: model,
        Messages: []message{
            {Role: "system", Content: systemPrompt},
            {Role: "user", Content: userPrompt},
        },
        Temperature: opts.Temperature,
        MaxTokens:   opts.MaxTokens,
    }
    if opts.JSON {
        reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
    }

    jsonData, err := json.Marshal(reqBody)
    if err != nil {
        return "", fmt.Errorf("failed to marshal request: %w", err)
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
    if err != nil {
        return "", fmt.Errorf("failed to create request: %w", err)
    }
    req.Header.Set("Authorization", "Bearer "+c.apiKey)
    req.Header.Set("Content-Type", "application/json")

    resp, err := c.client.Do(req)
    if err != nil {
        return "", fmt.Errorf("failed to send request: %w", err)
    }
    defer resp.Body.Close()

    body, err := io.ReadAll(resp.Body)
    if err != nil {
        return "", fmt.Errorf("failed to read response body: %w", err)
    }
    if resp.StatusCode != http.StatusOK {
        return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
    }

    var chatResp chatResponse
    if err := json.Unmarshal(body, &chatResp); err != nil {
        return "", fmt.Errorf("failed to parse response: %w", err)
    }
    if len(chatResp.Choices) == 0 {
        return "", fmt.Errorf("no choices in response")
    }
    return chatResp.Choices[0].Message.Content, nil
}
