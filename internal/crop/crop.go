// Package crop cuts an element's region out of a viewport screenshot.
package crop

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"strings"

	"github.com/Rorqualx/adscanner-go/internal/types"
)

// PNGDataURIPrefix starts every data URI this package produces.
const PNGDataURIPrefix = "data:image/png;base64,"

// BoundingBox is an element's rectangle in CSS pixels relative to the viewport.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SourceRect returns the screenshot pixel rectangle covered by box at the
// given device pixel ratio. Each edge value is rounded independently.
func SourceRect(box BoundingBox, scale float64) image.Rectangle {
	x := int(math.Round(box.Left * scale))
	y := int(math.Round(box.Top * scale))
	w := int(math.Round(box.Width * scale))
	h := int(math.Round(box.Height * scale))
	return image.Rect(x, y, x+w, y+h)
}

// Crop returns the region of snapshot under box as a PNG data URI.
// Parts of the region outside the snapshot are left transparent.
func Crop(snapshot string, box BoundingBox, scale float64) (string, error) {
	if scale <= 0 {
		scale = 1
	}

	src := SourceRect(box, scale)
	if src.Dx() <= 0 || src.Dy() <= 0 {
		return "", types.ErrEmptyRegion
	}

	data, err := DecodeDataURI(snapshot)
	if err != nil {
		return "", err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidSnapshot, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	bounds := img.Bounds()
	draw.Draw(dst, dst.Bounds(), img, bounds.Min.Add(src.Min), draw.Src)

	return EncodeDataURI(dst)
}

// DecodeDataURI returns the bytes of a base64 data URI.
func DecodeDataURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, fmt.Errorf("%w: not a data URI", types.ErrInvalidSnapshot)
	}
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: not base64 encoded", types.ErrInvalidSnapshot)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSnapshot, err)
	}
	return data, nil
}

// EncodeDataURI encodes img as a PNG data URI.
func EncodeDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode PNG: %w", err)
	}
	return PNGDataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// PNGDataURI wraps raw PNG bytes in a data URI.
func PNGDataURI(data []byte) string {
	return PNGDataURIPrefix + base64.StdEncoding.EncodeToString(data)
}
