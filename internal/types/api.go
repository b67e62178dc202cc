package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Upload validation limits.
const (
	MaxAdIDLength      = 1024
	MaxURLLength       = 8192
	MaxDOMHTMLLength   = 4 << 20  // 4MB
	MaxScreenshotBytes = 16 << 20 // 16MB of data URI text
	MaxBidMetaLength   = 64 << 10 // 64KB
)

// DefaultAdID is stored when an upload carries no ad_id.
const DefaultAdID = "no-id"

// UploadRequest is the body of POST /upload_ad. Every field is optional;
// null and missing are treated alike.
type UploadRequest struct {
	AdID       *string         `json:"ad_id"`
	BidMeta    json.RawMessage `json:"bid_meta,omitempty"`
	DOMHTML    *string         `json:"dom_html"`
	AdURL      *string         `json:"ad_url"`
	Screenshot *string         `json:"screenshot"`
	Context    *string         `json:"context"`
}

// ID returns the ad id or DefaultAdID.
func (r *UploadRequest) ID() string {
	if r.AdID == nil || *r.AdID == "" {
		return DefaultAdID
	}
	return *r.AdID
}

// BidMetaJSON returns bid_meta as JSON text. A missing key gives "{}"; an
// explicit null is stored as "null".
func (r *UploadRequest) BidMetaJSON() string {
	raw := strings.TrimSpace(string(r.BidMeta))
	if raw == "" {
		return "{}"
	}
	return raw
}

// Validate bounds the size of every field.
func (r *UploadRequest) Validate() error {
	if len(r.ID()) > MaxAdIDLength {
		return fmt.Errorf("ad_id exceeds maximum length of %d", MaxAdIDLength)
	}
	if len(deref(r.AdURL)) > MaxURLLength {
		return fmt.Errorf("ad_url exceeds maximum length of %d", MaxURLLength)
	}
	if len(deref(r.Context)) > MaxURLLength {
		return fmt.Errorf("context exceeds maximum length of %d", MaxURLLength)
	}
	if len(deref(r.DOMHTML)) > MaxDOMHTMLLength {
		return fmt.Errorf("dom_html exceeds maximum length of %d", MaxDOMHTMLLength)
	}
	if len(deref(r.Screenshot)) > MaxScreenshotBytes {
		return fmt.Errorf("screenshot exceeds maximum length of %d", MaxScreenshotBytes)
	}
	if len(r.BidMeta) > MaxBidMetaLength {
		return fmt.Errorf("bid_meta exceeds maximum length of %d", MaxBidMetaLength)
	}
	if len(r.BidMeta) > 0 && !json.Valid(r.BidMeta) {
		return fmt.Errorf("bid_meta is not valid JSON")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// String helpers for optional upload fields.
func (r *UploadRequest) URL() string        { return deref(r.AdURL) }
func (r *UploadRequest) HTML() string       { return deref(r.DOMHTML) }
func (r *UploadRequest) ContextURL() string { return deref(r.Context) }
func (r *UploadRequest) Image() string      { return deref(r.Screenshot) }

// UploadResponse answers POST /upload_ad.
type UploadResponse struct {
	Status          string `json:"status"`
	ScreenshotSaved *bool  `json:"screenshot_saved,omitempty"`
	Message         string `json:"message,omitempty"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
	Ads     int64  `json:"ads"`
}

// AdRecord is one stored ad as listed by GET /ads.
type AdRecord struct {
	ID             int64  `json:"id"`
	AdID           string `json:"ad_id"`
	BidMeta        string `json:"bid_meta"`
	AdURL          string `json:"ad_url"`
	ETLD           string `json:"etld"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	Context        string `json:"context"`
	CreatedAt      string `json:"created_at"`
}

// AdsResponse answers GET /ads.
type AdsResponse struct {
	Status string     `json:"status"`
	Count  int        `json:"count"`
	Ads    []AdRecord `json:"ads"`
}

// Status values for API responses.
const (
	StatusSuccess = "success"
	StatusOK      = "ok"
	StatusError   = "error"
)
