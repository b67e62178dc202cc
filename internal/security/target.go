package security

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Rorqualx/adscanner-go/internal/types"
)

// ValidateTargetURL checks that rawURL is an absolute http(s) URL a browser
// tab can be pointed at. Private hosts are allowed: scanning a local test
// page is a normal use.
func ValidateTargetURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: empty", types.ErrInvalidURL)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q not allowed", types.ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("%w: missing host", types.ErrInvalidURL)
	}
	return nil
}
