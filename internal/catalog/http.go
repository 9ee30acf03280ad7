package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type HTTPCatalog struct {
	logger zerolog.Logger
	url    string
	token  string
	client *http.Client
}

func NewHTTP(url, token string, client *http.Client) *HTTPCatalog {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &HTTPCatalog{
		logger: log.With().Str("module", "catalog").Str("submodule", "http").Logger(),
		url:    url,
		token:  token,
		client: client,
	}
}

func (c *HTTPCatalog) List(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unable to fetch listing: unexpected status %s", resp.Status)
	}

	items := []Item{}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("unable to decode listing: %w", err)
	}

	c.logger.Debug().Int("items", len(items)).Msg("listing fetched")
	return items, nil
}

// Get scans the full listing, the service has no per-item endpoint.
func (c *HTTPCatalog) Get(ctx context.Context, id string) (*Item, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	return find(items, id)
}
