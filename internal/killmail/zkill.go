package killmail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultZKillBaseURL = "https://zkillboard.com/api"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// KillRef is one entry of a zKillboard region listing, newest first.
// The detail record must be fetched separately by id and hash.
type KillRef struct {
	KillmailID int64
	Hash       string
	TotalValue float64
}

// ZKillClient lists recent kills per region from zKillboard.
type ZKillClient struct {
	client  HTTPClient
	baseURL string
	timeout time.Duration
}

// NewZKillClient creates a ZKillClient with the given HTTP client.
func NewZKillClient(client HTTPClient) *ZKillClient {
	return &ZKillClient{
		client:  client,
		baseURL: defaultZKillBaseURL,
		timeout: 15 * time.Second,
	}
}

// SetBaseURL overrides the zKillboard base URL (useful for testing).
func (z *ZKillClient) SetBaseURL(u string) {
	z.baseURL = u
}

// RegionKills fetches the recent kill listing for a region. Entries
// with a missing id or hash are dropped.
func (z *ZKillClient) RegionKills(ctx context.Context, regionID int64) ([]KillRef, error) {
	ctx, cancel := context.WithTimeout(ctx, z.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/kills/regionID/%d/", z.baseURL, regionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "EveCommunityBot/1.0")

	resp, err := z.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var packages []struct {
		KillmailID int64 `json:"killmail_id"`
		ZKB        struct {
			Hash       string  `json:"hash"`
			TotalValue float64 `json:"totalValue"`
		} `json:"zkb"`
	}
	if err := json.Unmarshal(body, &packages); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	refs := make([]KillRef, 0, len(packages))
	for _, p := range packages {
		if p.KillmailID == 0 || p.ZKB.Hash == "" {
			continue
		}
		refs = append(refs, KillRef{
			KillmailID: p.KillmailID,
			Hash:       p.ZKB.Hash,
			TotalValue: p.ZKB.TotalValue,
		})
	}
	return refs, nil
}
