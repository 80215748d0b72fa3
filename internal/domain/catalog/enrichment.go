package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// EnrichmentClient fetches preview-image URLs for layouts from the external
// directory service. All of its failures are soft: callers log and continue
// with previews absent.
type EnrichmentClient struct {
	baseURL string
	secret  string
	http    *http.Client
	logger  *slog.Logger
}

// NewEnrichmentClient builds a client for the directory service. An empty
// baseURL yields a disabled client whose Previews always reports an error.
func NewEnrichmentClient(baseURL, secret string, timeout time.Duration, logger *slog.Logger) *EnrichmentClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &EnrichmentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Enabled reports whether the client is configured.
func (c *EnrichmentClient) Enabled() bool {
	return c.baseURL != "" && c.secret != ""
}

// token obtains a bearer token via the shared-secret POST.
func (c *EnrichmentClient) token(ctx context.Context) (string, error) {
	form := url.Values{"secret": {c.secret}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/get-token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var payload struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if payload.Data.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access_token")
	}
	return payload.Data.AccessToken, nil
}

// Previews lists preview-image URLs keyed by layout code.
func (c *EnrichmentClient) Previews(ctx context.Context) (map[string]string, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("enrichment client not configured")
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/layouts?orderby=id,asc", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing layouts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("layouts endpoint returned %s", resp.Status)
	}

	var records []struct {
		Code       string `json:"codigo"`
		PreviewURL string `json:"url_previa"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding layouts response: %w", err)
	}

	previews := make(map[string]string, len(records))
	for _, rec := range records {
		if rec.Code != "" && rec.PreviewURL != "" {
			previews[rec.Code] = rec.PreviewURL
		}
	}

	c.logger.Debug("enrichment previews fetched", slog.Int("count", len(previews)))
	return previews, nil
}
