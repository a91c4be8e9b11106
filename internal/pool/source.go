package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// defaultFetchTimeout bounds a single remote pool fetch.
const defaultFetchTimeout = 15 * time.Second

// ParseList parses a comma-separated static proxy list in
// "host:port:user:pass" form, as supplied via configuration or the
// GATEWAY_PROXIES environment variable. Empty elements are skipped;
// a malformed element fails the whole parse so a bad static list aborts
// startup rather than silently shrinking the pool.
func ParseList(raw string) ([]Descriptor, error) {
	var out []Descriptor

	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		parts := strings.SplitN(item, ":", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid proxy spec %q: want host:port:user:pass", item)
		}

		port, err := strconv.Atoi(parts[1])
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid proxy port in %q", item)
		}

		out = append(out, Descriptor{
			Host: parts[0],
			Port: port,
			User: parts[2],
			Pass: parts[3],
		})
	}

	return out, nil
}

// Fetcher retrieves the full proxy list from a remote JSON API.
// The endpoint is expected to return an array of descriptors:
//
//	[{"host":"1.2.3.4","port":8080,"user":"u","pass":"p"}, ...]
type Fetcher struct {
	url    string
	client *http.Client
}

// NewFetcher creates a fetcher for the given API URL.
func NewFetcher(url string) *Fetcher {
	return &Fetcher{
		url:    url,
		client: &http.Client{Timeout: defaultFetchTimeout},
	}
}

// Fetch retrieves and decodes the remote proxy list.
func (f *Fetcher) Fetch(ctx context.Context) ([]Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pool fetch request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proxy list: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy list endpoint returned status %d", resp.StatusCode)
	}

	var descriptors []Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptors); err != nil {
		return nil, fmt.Errorf("failed to decode proxy list: %w", err)
	}

	return descriptors, nil
}
