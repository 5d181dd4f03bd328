// Package esi talks to the EVE Swagger Interface and zKillboard.
package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/aflyhorse/kmstat/pkg/logger"
	"github.com/aflyhorse/kmstat/pkg/metrics"
)

const (
	defaultESIEndpoint   = "https://esi.evetech.net/latest"
	defaultZkillEndpoint = "https://zkillboard.com/api"

	// Both upstreams throttle aggressive clients, so all requests share
	// one limiter.
	defaultRequestsPerSecond = 10
)

// Character is the public slice of an ESI character record.
type Character struct {
	Name          string `json:"name"`
	Title         string `json:"title"`
	CorporationID int64  `json:"corporation_id"`
}

// Client fetches character identity and killmail values.
type Client struct {
	esiEndpoint   string
	zkillEndpoint string
	httpClient    *http.Client
	limiter       *rate.Limiter
	log           logger.Logger
}

// NewClient creates a rate-limited upstream client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		esiEndpoint:   defaultESIEndpoint,
		zkillEndpoint: defaultZkillEndpoint,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		log:           logger.Named("esi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond)
	}
	return c
}

// GetCharacter fetches public info for a character id.
func (c *Client) GetCharacter(ctx context.Context, characterID int64) (Character, error) {
	var ch Character
	url := fmt.Sprintf("%s/characters/%d/", c.esiEndpoint, characterID)
	if err := c.getJSON(ctx, "esi", url, &ch); err != nil {
		return Character{}, fmt.Errorf("character %d: %w", characterID, err)
	}
	return ch, nil
}

// GetAllianceID fetches the alliance a corporation belongs to, 0 when none.
func (c *Client) GetAllianceID(ctx context.Context, corporationID int64) (int64, error) {
	var corp struct {
		AllianceID int64 `json:"alliance_id"`
	}
	url := fmt.Sprintf("%s/corporations/%d/", c.esiEndpoint, corporationID)
	if err := c.getJSON(ctx, "esi", url, &corp); err != nil {
		return 0, fmt.Errorf("corporation %d: %w", corporationID, err)
	}
	return corp.AllianceID, nil
}

// GetKillmailValue fetches the zKillboard-appraised ISK value of a killmail.
func (c *Client) GetKillmailValue(ctx context.Context, killmailID int64) (float64, error) {
	var rows []struct {
		Zkb struct {
			TotalValue float64 `json:"totalValue"`
		} `json:"zkb"`
	}
	url := fmt.Sprintf("%s/killID/%d/", c.zkillEndpoint, killmailID)
	if err := c.getJSON(ctx, "zkillboard", url, &rows); err != nil {
		return 0, fmt.Errorf("killmail %d value: %w", killmailID, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("killmail %d: %w", killmailID, ErrNotFound)
	}
	return rows[0].Zkb.TotalValue, nil
}

func (c *Client) getJSON(ctx context.Context, service, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "kmstat")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordClientRequest(service, "error")
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	metrics.RecordClientRequest(service, strconv.Itoa(resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		c.log.Warn(ctx, "upstream returned non-OK status",
			logger.String("service", service),
			logger.Int("status", resp.StatusCode),
			logger.String("url", url))
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", service, err)
	}
	return nil
}
