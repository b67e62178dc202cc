package collector

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // decoder registration
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Rorqualx/adscanner-go/internal/security"
	"github.com/Rorqualx/adscanner-go/internal/types"
)

const timestampLayout = "20060102_150405"

// DecodeScreenshot turns an uploaded screenshot into image bytes. Anything up
// to the first comma is treated as a data URI header and dropped. The bytes
// must decode as an image.
func DecodeScreenshot(s string) ([]byte, error) {
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty screenshot", types.ErrInvalidSnapshot)
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSnapshot, err)
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSnapshot, err)
	}
	return data, nil
}

// ScreenshotName returns the file name for adID's screenshot taken at t.
func ScreenshotName(adID string, t time.Time) string {
	return fmt.Sprintf("%s_%s.png", security.SafeFileID(adID), t.UTC().Format(timestampLayout))
}

// writeScreenshot stores data under dir and returns the file path.
func writeScreenshot(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}
