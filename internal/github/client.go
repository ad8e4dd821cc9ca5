// Package github talks to the upstream source-control provider: it mirrors
// build states onto commit statuses, validates inbound webhooks, and lists
// organization and repository people for the membership sync.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Client is a minimal GitHub REST API client.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
}

// NewClient creates a client against apiURL (empty means api.github.com)
// authenticating with token. timeout bounds a single request.
func NewClient(apiURL, token string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     apiURL,
		token:      token,
	}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, err
	}
	rawQuery := ""
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		rawQuery = endpoint[i+1:]
		endpoint = endpoint[:i]
	}
	u.Path = path.Join(u.Path, endpoint)
	u.RawQuery = rawQuery

	var req *http.Request
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, method, u.String(), strings.NewReader(string(jsonBody)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		var err error
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
		if err != nil {
			return nil, err
		}
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "Federalist/1.0")

	return req, nil
}

func (c *Client) doRequest(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("GitHub API error: %s", resp.Status)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}
