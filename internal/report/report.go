// Package report delivers ad evidence to the collection endpoint.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/adscanner-go/internal/metrics"
	"github.com/Rorqualx/adscanner-go/internal/security"
	"github.com/Rorqualx/adscanner-go/internal/settings"
	"github.com/Rorqualx/adscanner-go/internal/types"
	"github.com/Rorqualx/adscanner-go/pkg/version"
)

// Payload is one ad report. Nil pointers are sent as JSON null.
type Payload struct {
	AdID       string  `json:"ad_id"`
	AdURL      *string `json:"ad_url"`
	Screenshot *string `json:"screenshot"`
	DOMHTML    *string `json:"dom_html"`
	Context    string  `json:"context"`
}

// SettingsSource resolves the current backend settings.
type SettingsSource interface {
	Backend() settings.Backend
}

// Dispatcher posts payloads to the configured backend. Failed deliveries are
// logged and reported to the caller but never retried.
type Dispatcher struct {
	settings   SettingsSource
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewDispatcher creates a Dispatcher. A zero timeout means no client timeout;
// the request still ends with its context.
func NewDispatcher(source SettingsSource, timeout time.Duration) *Dispatcher {
	if source == nil {
		source = settings.Static{}
	}
	return &Dispatcher{
		settings:   source,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.Logger,
	}
}

// WithLogger returns a copy of d that logs to logger.
func (d *Dispatcher) WithLogger(logger zerolog.Logger) *Dispatcher {
	cp := *d
	cp.logger = logger
	return &cp
}

// Send delivers p. A non-2xx status or transport failure is returned as a
// *types.DispatchError after being logged.
func (d *Dispatcher) Send(ctx context.Context, p Payload) error {
	endpoint := d.settings.Backend().UploadURL()

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		d.logFailure(endpoint, p, 0, err)
		return types.NewTransportError(endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "adscanner-go/"+version.Full())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logFailure(endpoint, p, 0, err)
		return types.NewTransportError(endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logFailure(endpoint, p, resp.StatusCode, nil)
		return types.NewStatusError(endpoint, resp.StatusCode)
	}

	metrics.RecordDispatch(true)
	d.logger.Info().
		Str("ad_id", p.AdID).
		Str("endpoint", security.RedactURL(endpoint)).
		Bool("screenshot", p.Screenshot != nil).
		Msg("Ad data sent successfully")
	return nil
}

func (d *Dispatcher) logFailure(endpoint string, p Payload, status int, err error) {
	metrics.RecordDispatch(false)
	ev := d.logger.Error().
		Str("ad_id", p.AdID).
		Str("endpoint", security.RedactURL(endpoint))
	if status != 0 {
		ev = ev.Int("status", status)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("Failed to send ad data")
}

// WithHTTPClient returns a copy of d that sends through client.
func (d *Dispatcher) WithHTTPClient(client *http.Client) *Dispatcher {
	cp := *d
	cp.httpClient = client
	return &cp
}
