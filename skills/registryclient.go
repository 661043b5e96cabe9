package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RemoteSkill is one candidate entry in a registry search response.
type RemoteSkill struct {
	Name        string  `json:"name"`
	ScopedName  string  `json:"scopedName"`
	Description string  `json:"description"`
	Rating      float64 `json:"rating"`
	Downloads   int     `json:"downloads"`
	Category    string  `json:"category"`
}

// RegistryClient searches a remote skill registry over HTTP, the
// source the Reviewer checks before falling back to generative
// skill creation.
type RegistryClient struct {
	baseURL string
	http    *http.Client
}

// NewRegistryClient builds a client against baseURL. An empty baseURL
// disables remote search: Search always returns no results, so the
// Reviewer falls straight through to its generative fallback.
func NewRegistryClient(baseURL string) *RegistryClient {
	return &RegistryClient{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 10 * time.Second}}
}

// Search queries the registry's skill search endpoint for query,
// returning up to limit candidates ordered by the registry's own
// ranking.
func (c *RegistryClient) Search(ctx context.Context, query string, limit int) ([]RemoteSkill, error) {
	if c.baseURL == "" {
		return nil, nil
	}

	q := url.Values{"q": {query}, "page_size": {strconv.Itoa(limit)}}
	reqURL := fmt.Sprintf("%s/skills/search?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("skills: build registry search request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("skills: registry search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("skills: registry search status %d", resp.StatusCode)
	}

	var body struct {
		Results []RemoteSkill `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("skills: decode registry search response: %w", err)
	}
	return body.Results, nil
}
