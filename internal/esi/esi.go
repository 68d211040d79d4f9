// Package esi is a client for the EVE Swagger Interface used to enrich
// killmails and read server status.
package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"eve_bot/internal/model"
)

const defaultBaseURL = "https://esi.evetech.net/latest"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Category selects the endpoint for a name lookup.
type Category string

// Supported name categories.
const (
	CategoryType        Category = "type"
	CategoryCharacter   Category = "character"
	CategoryCorporation Category = "corporation"
	CategoryAlliance    Category = "alliance"
	CategorySystem      Category = "system"
	CategoryRegion      Category = "region"
)

// Killmail is the detail record for one kill.
type Killmail struct {
	KillmailID    int64      `json:"killmail_id"`
	KillmailTime  time.Time  `json:"killmail_time"`
	SolarSystemID int64      `json:"solar_system_id"`
	Victim        Victim     `json:"victim"`
	Attackers     []Attacker `json:"attackers"`
}

// Victim identifies the destroyed ship and its pilot.
type Victim struct {
	ShipTypeID    int64 `json:"ship_type_id"`
	CharacterID   int64 `json:"character_id"`
	CorporationID int64 `json:"corporation_id"`
	AllianceID    int64 `json:"alliance_id"`
}

// Attacker is one participant on the killing side.
type Attacker struct {
	CharacterID   int64 `json:"character_id"`
	CorporationID int64 `json:"corporation_id"`
	AllianceID    int64 `json:"alliance_id"`
	ShipTypeID    int64 `json:"ship_type_id"`
	FinalBlow     bool  `json:"final_blow"`
}

// FinalBlow returns the attacker that landed the final blow, or false.
func (k *Killmail) FinalBlow() (Attacker, bool) {
	for _, a := range k.Attackers {
		if a.FinalBlow {
			return a, true
		}
	}
	return Attacker{}, false
}

// Status is the EVE server status readout.
type Status struct {
	Players       int       `json:"players"`
	ServerVersion string    `json:"server_version"`
	StartTime     time.Time `json:"start_time"`
}

// Client talks to ESI. Name lookups are cached because the same ids
// recur across kills.
type Client struct {
	client  HTTPClient
	baseURL string
	timeout time.Duration

	mu    sync.Mutex
	names map[nameKey]string
}

type nameKey struct {
	category Category
	id       int64
}

// Cache cap. On overflow the cache is dropped and rebuilt.
const maxCachedNames = 4096

// New creates a Client with the given HTTP client.
func New(client HTTPClient) *Client {
	return &Client{
		client:  client,
		baseURL: defaultBaseURL,
		timeout: 15 * time.Second,
		names:   make(map[nameKey]string),
	}
}

// SetBaseURL overrides the ESI base URL (useful for testing).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// KillmailDetail fetches the full record for a kill by id and hash.
func (c *Client) KillmailDetail(ctx context.Context, killID int64, hash string) (*Killmail, error) {
	var km Killmail
	url := fmt.Sprintf("%s/killmails/%d/%s/", c.baseURL, killID, hash)
	if err := c.getJSON(ctx, url, &km); err != nil {
		return nil, err
	}
	return &km, nil
}

// RegionID resolves a solar system to its region through the
// constellation chain.
func (c *Client) RegionID(ctx context.Context, systemID int64) (int64, error) {
	var system struct {
		ConstellationID int64 `json:"constellation_id"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/universe/systems/%d/", c.baseURL, systemID), &system); err != nil {
		return 0, fmt.Errorf("resolve system %d: %w", systemID, err)
	}

	var constellation struct {
		RegionID int64 `json:"region_id"`
	}
	url := fmt.Sprintf("%s/universe/constellations/%d/", c.baseURL, system.ConstellationID)
	if err := c.getJSON(ctx, url, &constellation); err != nil {
		return 0, fmt.Errorf("resolve constellation %d: %w", system.ConstellationID, err)
	}
	return constellation.RegionID, nil
}

// Name resolves an entity id to its display name.
func (c *Client) Name(ctx context.Context, category Category, id int64) (string, error) {
	key := nameKey{category: category, id: id}

	c.mu.Lock()
	if name, ok := c.names[key]; ok {
		c.mu.Unlock()
		return name, nil
	}
	c.mu.Unlock()

	url, err := c.nameURL(category, id)
	if err != nil {
		return "", err
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return "", fmt.Errorf("resolve %s %d: %w", category, id, err)
	}

	c.mu.Lock()
	if len(c.names) >= maxCachedNames {
		c.names = make(map[nameKey]string)
	}
	c.names[key] = payload.Name
	c.mu.Unlock()
	return payload.Name, nil
}

// ServerStatus returns the current EVE server status.
func (c *Client) ServerStatus(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.getJSON(ctx, c.baseURL+"/status/", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) nameURL(category Category, id int64) (string, error) {
	switch category {
	case CategoryType:
		return fmt.Sprintf("%s/universe/types/%d/", c.baseURL, id), nil
	case CategoryCharacter:
		return fmt.Sprintf("%s/characters/%d/", c.baseURL, id), nil
	case CategoryCorporation:
		return fmt.Sprintf("%s/corporations/%d/", c.baseURL, id), nil
	case CategoryAlliance:
		return fmt.Sprintf("%s/alliances/%d/", c.baseURL, id), nil
	case CategorySystem:
		return fmt.Sprintf("%s/universe/systems/%d/", c.baseURL, id), nil
	case CategoryRegion:
		return fmt.Sprintf("%s/universe/regions/%d/", c.baseURL, id), nil
	default:
		return "", fmt.Errorf("unknown name category %q", category)
	}
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "EveCommunityBot/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return model.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
