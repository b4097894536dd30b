package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	coreerrors "hl7-interop-bridge/internal/errors"
)

// FHIRClient posts a FHIR transaction Bundle to a base URL and returns the
// server's JSON response body.
type FHIRClient struct {
	HTTPClient *http.Client
}

// NewFHIRClient builds a FHIRClient with the given request timeout.
func NewFHIRClient(timeout time.Duration) *FHIRClient {
	return &FHIRClient{HTTPClient: &http.Client{Timeout: timeout}}
}

// Post sends bundle as a FHIR transaction to baseURL and returns the
// response body. A non-2xx status is reported as KindHTTPError carrying
// the status code and response body in Details.
func (c *FHIRClient) Post(ctx context.Context, baseURL string, bundle []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(bundle))
	if err != nil {
		return nil, fmt.Errorf("transport: building fhir request: %w", err)
	}
	req.Header.Set("Content-Type", "application/fhir+json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindConnectionRefused, "fhir request failed", map[string]any{"url": baseURL, "cause": err.Error()})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: reading fhir response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, coreerrors.New(coreerrors.KindHTTPError, "fhir endpoint rejected bundle", map[string]any{
			"status": resp.StatusCode,
			"body":   string(body),
		})
	}
	return body, nil
}
