// Package ledger talks to the external identity ledger that owns DID records and anchors method linkages.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"didlink/internal/autherr"
)

const defaultTimeout = 5 * time.Second

// Identity is the ledger's view of a DID.
type Identity struct {
	DID         string `json:"did"`
	Deactivated bool   `json:"deactivated"`
	// VerificationKey is the PEM public key used to check proof-of-control tokens.
	VerificationKey string `json:"verification_key,omitempty"`
}

// Linkage is an activated method to anchor on the ledger.
type Linkage struct {
	DID           string `json:"did"`
	MethodID      string `json:"method_id"`
	MethodType    string `json:"method_type"`
	PublicKeyHash string `json:"public_key_hash"`
}

// Client is the ledger contract used by the registry, session and proof services.
type Client interface {
	GetIdentity(ctx context.Context, did string) (*Identity, error)
	SubmitMethodLinkage(ctx context.Context, l Linkage) (string, error)
}

// HTTPClient implements Client against the ledger's JSON API.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewHTTPClient returns a client for baseURL. timeout bounds every call; zero uses 5s.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		APIKey:     apiKey,
		Timeout:    timeout,
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// GetIdentity fetches the DID record. Unknown DIDs are NotFound; transport and 5xx failures are Upstream.
// Results are never cached.
func (c *HTTPClient) GetIdentity(ctx context.Context, did string) (*Identity, error) {
	var out Identity
	status, err := c.do(ctx, http.MethodGet, "/identities/"+url.PathEscape(did), nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, autherr.NotFound("identity not found")
	}
	if out.DID == "" {
		out.DID = did
	}
	return &out, nil
}

// SubmitMethodLinkage anchors l and returns the ledger transaction reference.
func (c *HTTPClient) SubmitMethodLinkage(ctx context.Context, l Linkage) (string, error) {
	var out struct {
		TxRef string `json:"tx_ref"`
	}
	status, err := c.do(ctx, http.MethodPost, "/identities/"+url.PathEscape(l.DID)+"/methods", l, &out)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", autherr.NotFound("identity not found")
	}
	if out.TxRef == "" {
		return "", autherr.Upstream("ledger unavailable", fmt.Errorf("ledger: empty tx_ref"))
	}
	return out.TxRef, nil
}

// do sends the request and decodes a 2xx body into out. 404 is returned as a status, not an error.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, autherr.Internal("internal error", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return 0, autherr.Internal("internal error", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, autherr.Upstream("ledger unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, autherr.Upstream("ledger unavailable", fmt.Errorf("ledger: %s %s status=%d body=%s", method, path, resp.StatusCode, string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, autherr.Upstream("ledger unavailable", fmt.Errorf("ledger: decode: %w", err))
	}
	return resp.StatusCode, nil
}
