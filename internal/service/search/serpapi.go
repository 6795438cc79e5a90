package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const serpAPIDefaultURL = "https://serpapi.com/search"

// SerpAPI queries Google results through serpapi.com.
type SerpAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSerpAPI creates a SerpAPI provider. An empty baseURL uses the public endpoint.
func NewSerpAPI(apiKey, baseURL string, timeout time.Duration) *SerpAPI {
	if baseURL == "" {
		baseURL = serpAPIDefaultURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SerpAPI{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (p *SerpAPI) Name() string { return "serpapi" }

type serpAPIResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic_results"`
}

// Search implements Provider.
func (p *SerpAPI) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", p.apiKey)
	params.Set("engine", "google")
	params.Set("num", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var payload serpAPIResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("serpapi error: %s", payload.Error)
	}

	results := make([]Result, 0, len(payload.OrganicResults))
	for _, r := range payload.OrganicResults {
		results = append(results, Result{Title: r.Title, Snippet: r.Snippet, Link: r.Link})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
