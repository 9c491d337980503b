// Package pricing consumes the public LiteLLM model price catalog. Price data
// is opportunistic: a missing catalog or a model without a match degrades to
// empty price fields, never to an error.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// DefaultCatalogURL is the upstream price catalog keyed by model id.
const DefaultCatalogURL = "https://raw.githubusercontent.com/BerriAI/litellm/refs/heads/main/model_prices_and_context_window.json"

// priceKeys is the set of cost fields carried over into model_info. Values
// are passed through as opaque numbers.
var priceKeys = []string{
	"input_cost_per_token",
	"output_cost_per_token",
	"input_cost_per_audio_token",
	"output_cost_per_audio_token",
	"input_cost_per_image",
	"output_cost_per_image",
	"input_cost_per_video_per_second",
	"output_cost_per_video_per_second",
	"cache_creation_input_token_cost",
	"cache_read_input_token_cost",
	"output_cost_per_reasoning_token",
	"input_cost_per_token_above_200k_tokens",
	"output_cost_per_token_above_200k_tokens",
}

// Catalog is an immutable snapshot of the price catalog.
type Catalog struct {
	entries map[string]map[string]any
}

// NewCatalog wraps pre-fetched catalog entries. Useful in tests.
func NewCatalog(entries map[string]map[string]any) *Catalog {
	if entries == nil {
		entries = map[string]map[string]any{}
	}
	return &Catalog{entries: entries}
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Fetcher downloads the catalog over HTTP.
type Fetcher struct {
	url        string
	httpClient *http.Client
}

// NewFetcher creates a catalog fetcher for the given URL. An empty URL means
// the default upstream catalog.
func NewFetcher(url string) *Fetcher {
	if url == "" {
		url = DefaultCatalogURL
	}
	return &Fetcher{
		url:        url,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Fetch downloads and decodes the catalog.
func (f *Fetcher) Fetch(ctx context.Context) (*Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch price catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch price catalog: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read price catalog: %w", err)
	}

	var entries map[string]map[string]any
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode price catalog: %w", err)
	}

	return NewCatalog(entries), nil
}

// Find locates price data for a model id, trying name variations when no
// exact entry exists. Gateway-side model ids often carry a provider prefix or
// capability suffix the catalog does not; candidates strip those in turn.
// Returns the matched catalog key and its price fields, or ok=false.
func (c *Catalog) Find(modelID string) (fields map[string]any, matched string, ok bool) {
	candidates := candidateIDs(modelID)

	for _, candidate := range candidates {
		if entry, exists := c.entries[candidate]; exists {
			return extractPriceFields(entry), candidate, true
		}
	}

	// Partial match: any catalog key containing the candidate. Keys are
	// scanned in sorted order so the result is deterministic.
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, candidate := range candidates {
		for _, key := range keys {
			if strings.Contains(key, candidate) {
				return extractPriceFields(c.entries[key]), key, true
			}
		}
	}

	return nil, "", false
}

// candidateIDs expands a model id into lookup candidates, most specific first.
func candidateIDs(modelID string) []string {
	candidates := []string{modelID}

	if stripped, found := strings.CutPrefix(modelID, "gemini-"); found {
		candidates = append(candidates, stripped)
	}

	for _, suffix := range []string{"-thinking", "-medium"} {
		if stripped, found := strings.CutSuffix(modelID, suffix); found {
			candidates = append(candidates, stripped)
			if bare, hadPrefix := strings.CutPrefix(stripped, "gemini-"); hadPrefix {
				candidates = append(candidates, bare)
			}
		}
	}

	return candidates
}

// extractPriceFields filters a catalog entry down to cost fields only.
func extractPriceFields(entry map[string]any) map[string]any {
	fields := make(map[string]any)
	for _, key := range priceKeys {
		if value, exists := entry[key]; exists {
			fields[key] = value
		}
	}
	return fields
}
