package filterlist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/adscanner-go/internal/types"
	"github.com/Rorqualx/adscanner-go/pkg/version"
)

// maxListSize caps the downloaded list (10MB).
const maxListSize = 10 * 1024 * 1024

// Fetcher downloads filter lists over HTTP.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher. A nil client gets a 30 second timeout client.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{httpClient: client}
}

// Fetch downloads the filter list at url and returns its text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "adscanner-go/"+version.Full())
	req.Header.Set("Accept", "text/plain, */*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrFilterListFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status code %d", types.ErrFilterListFetch, resp.StatusCode)
	}

	// Read one byte past the limit so oversize lists are rejected, not truncated
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", types.ErrFilterListFetch, err)
	}
	if len(body) > maxListSize {
		return "", types.ErrFilterListTooBig
	}

	log.Debug().
		Str("url", url).
		Int("bytes", len(body)).
		Msg("Filter list downloaded")

	return string(body), nil
}

// Install fetches the list at url and stores it, returning the number of
// cosmetic selectors it contains.
func Install(ctx context.Context, f *Fetcher, s *Store, url string) (int, error) {
	raw, err := f.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}
	if err := s.Save(raw); err != nil {
		return 0, err
	}
	return len(Compile(raw)), nil
}
