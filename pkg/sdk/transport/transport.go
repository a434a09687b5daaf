// Package transport delivers encoded report batches to the
// collection endpoint. Mechanisms differ in their reliability,
// latency, and behavior while the host application is being torn
// down; the Chain picks between them per send.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// BeaconTimeout bounds a fire-and-forget attempt. It must be short:
// beacon sends run while the host may be shutting down.
const BeaconTimeout = 3 * time.Second

// Transport sends one encoded batch. Exactly one delivery mechanism
// is attempted per call; retries are the reporter's business.
type Transport interface {
	// Send posts the JSON body to the endpoint bound at construction.
	Send(ctx context.Context, body []byte) error

	// Name identifies the mechanism in logs.
	Name() string
}

// HTTPTransport is the preferred mechanism: a keep-alive client whose
// success is a 2xx response.
type HTTPTransport struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTP creates the keep-alive transport. The endpoint must be an
// absolute http(s) URL.
func NewHTTP(endpoint, apiKey string, timeout time.Duration) (*HTTPTransport, error) {
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (t *HTTPTransport) Name() string { return "http" }

// Send posts the body and requires a successful status.
func (t *HTTPTransport) Send(ctx context.Context, body []byte) error {
	resp, err := post(ctx, t.client, t.endpoint, t.apiKey, body)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}

// BasicTransport is the baseline mechanism: no connection reuse, an
// explicit timeout, no endpoint validation. Used only when the
// keep-alive transport cannot be constructed.
type BasicTransport struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewBasic creates the baseline transport. It never fails.
func NewBasic(endpoint, apiKey string, timeout time.Duration) *BasicTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BasicTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
	}
}

func (t *BasicTransport) Name() string { return "basic" }

func (t *BasicTransport) Send(ctx context.Context, body []byte) error {
	resp, err := post(ctx, t.client, t.endpoint, t.apiKey, body)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}

// BeaconTransport is the teardown-safe mechanism: fire and forget.
// Success means the request was handed to the network layer; the
// response status is never consulted, because during teardown there
// may be nobody left to consult it.
type BeaconTransport struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewBeacon creates the fire-and-forget transport.
func NewBeacon(endpoint, apiKey string) *BeaconTransport {
	return &BeaconTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: BeaconTimeout,
		},
	}
}

func (t *BeaconTransport) Name() string { return "beacon" }

// Send posts the body and reports success as soon as the request has
// been written, regardless of the response status.
func (t *BeaconTransport) Send(ctx context.Context, body []byte) error {
	resp, err := post(ctx, t.client, t.endpoint, t.apiKey, body)
	if err != nil {
		return fmt.Errorf("beacon not accepted: %w", err)
	}
	drainAndClose(resp)
	return nil
}

func post(ctx context.Context, client *http.Client, endpoint, apiKey string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// drainAndClose discards the body so the connection can be reused.
func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q missing host", endpoint)
	}
	return nil
}
