// Package shops finds nearby resale shops likely to buy an identified item.
//
// Lookup goes through the SearchAPI.io Google Maps engine with three query
// categories per run: pawn shops, an item-specific specialty query, and
// general used-goods buyers. Results are deduplicated by name across
// categories, first seen wins.
package shops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"appraisal/pkg/logx"
)

// Listing is one candidate shop.
type Listing struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Phone   string  `json:"phone"`
	Rating  float64 `json:"rating,omitempty"`
	Type    string  `json:"shop_type"` // "pawn" | "specialty" | "buyer"
}

// Shop type tags carried through to the synthesis payload.
const (
	TypePawn      = "pawn"
	TypeSpecialty = "specialty"
	TypeBuyer     = "buyer"
)

// Finder locates candidate shops for an identified item near a coordinate.
// The coordinate uses the "@lat,lng" form carried on the analyze request.
type Finder interface {
	Find(ctx context.Context, identification, coordinates string) ([]Listing, error)
}

// requestTimeout bounds each search call. This is the only per-call timeout
// in the pipeline; LLM calls rely on provider client defaults.
const requestTimeout = 15 * time.Second

// specialtyQueries maps identification keywords to a specialty shop query.
// The table is ordered: earlier rows take priority and the first row with
// any matching keyword wins. No match means no specialty query for the run.
var specialtyQueries = []struct {
	Keywords []string
	Query    string
}{
	{[]string{"watch", "rolex", "omega", "seiko"}, "watch dealer"},
	{[]string{"jewelry", "gold", "silver", "diamond", "ring", "necklace"}, "jewelry buyer"},
	{[]string{"guitar", "violin", "piano", "drum", "amplifier", "instrument"}, "musical instrument store"},
	{[]string{"camera", "lens", "nikon", "canon", "leica"}, "camera store"},
	{[]string{"bike", "bicycle", "cycling"}, "used bike shop"},
	{[]string{"laptop", "iphone", "ipad", "phone", "console", "computer", "electronics"}, "electronics resale store"},
	{[]string{"coin", "stamp", "card", "collectible", "antique", "vintage"}, "antique dealer"},
	{[]string{"tool", "drill", "saw"}, "tool consignment shop"},
}

// SpecialtyQuery returns the specialty search query for an identification
// string, or "" when no keyword matches.
func SpecialtyQuery(identification string) string {
	lower := strings.ToLower(identification)
	for _, row := range specialtyQueries {
		for _, kw := range row.Keywords {
			if strings.Contains(lower, kw) {
				return row.Query
			}
		}
	}
	return ""
}

// Client calls the SearchAPI.io Google Maps engine.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	radiusMiles int
	logger      *logx.Logger
}

// NewClient creates a shop search client. baseURL is normally
// config.SearchAPIBaseURL; tests point it at a mock server.
func NewClient(apiKey, baseURL string, radiusMiles int) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		apiKey:      apiKey,
		baseURL:     baseURL,
		radiusMiles: radiusMiles,
		logger:      logx.NewLogger("shops"),
	}
}

// Find runs all applicable category searches and merges the results.
// Individual category failures degrade to fewer results; Find only returns
// an error when every category fails.
func (c *Client) Find(ctx context.Context, identification, coordinates string) ([]Listing, error) {
	type category struct {
		query    string
		shopType string
	}
	categories := []category{
		{"pawn shop", TypePawn},
	}
	if q := SpecialtyQuery(identification); q != "" {
		categories = append(categories, category{q, TypeSpecialty})
	}
	categories = append(categories, category{"second hand store", TypeBuyer})

	var merged []Listing
	var lastErr error
	failures := 0
	for _, cat := range categories {
		listings, err := c.search(ctx, cat.query, coordinates, cat.shopType)
		if err != nil {
			c.logger.Warn("Search %q failed: %v", cat.query, err)
			lastErr = err
			failures++
			continue
		}
		merged = append(merged, listings...)
	}
	if failures == len(categories) {
		return nil, fmt.Errorf("all shop searches failed: %w", lastErr)
	}

	merged = DedupeByName(merged)
	return PreferWithPhone(merged), nil
}

func (c *Client) search(ctx context.Context, query, coordinates, shopType string) ([]Listing, error) {
	params := url.Values{}
	params.Set("engine", "google_maps")
	params.Set("q", fmt.Sprintf("%s within %d miles", query, c.radiusMiles))
	params.Set("ll", coordinates)
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		LocalResults []struct {
			Title   string  `json:"title"`
			Address string  `json:"address"`
			Phone   string  `json:"phone"`
			Rating  float64 `json:"rating"`
		} `json:"local_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	listings := make([]Listing, 0, len(parsed.LocalResults))
	for _, r := range parsed.LocalResults {
		if r.Title == "" {
			continue
		}
		listings = append(listings, Listing{
			Name:    r.Title,
			Address: r.Address,
			Phone:   r.Phone,
			Rating:  r.Rating,
			Type:    shopType,
		})
	}
	return listings, nil
}

// DedupeByName collapses listings sharing a name to the first-seen entry.
func DedupeByName(listings []Listing) []Listing {
	seen := make(map[string]bool, len(listings))
	out := make([]Listing, 0, len(listings))
	for _, l := range listings {
		key := strings.ToLower(strings.TrimSpace(l.Name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}

// PreferWithPhone drops phoneless listings, but only when at least one
// listing has a phone number. A callable shop is worth more to the
// negotiation stage than a closer one that cannot be reached.
func PreferWithPhone(listings []Listing) []Listing {
	any := false
	for _, l := range listings {
		if l.Phone != "" {
			any = true
			break
		}
	}
	if !any {
		return listings
	}
	out := make([]Listing, 0, len(listings))
	for _, l := range listings {
		if l.Phone != "" {
			out = append(out, l)
		}
	}
	return out
}
