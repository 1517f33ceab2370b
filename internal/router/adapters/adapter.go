package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/perculacms/aicore/internal/types"
)

// Adapter translates a vendor-neutral chat request into one vendor's API.
type Adapter interface {
	Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error)
}

// Credentials carries the per-provider account settings an adapter needs.
type Credentials struct {
	APIKey         string
	OrganizationID string
}

// Options configures the transport shared by adapters of one vendor.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// NewHTTPClient builds the client adapters use for outbound calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	KindUnreachable ErrorKind = "unreachable"
	KindAuth        ErrorKind = "auth"
	KindQuota       ErrorKind = "quota"
	KindMalformed   ErrorKind = "malformed"
	KindVendor      ErrorKind = "vendor"
)

// AdapterError is returned for every failure inside an adapter call.
type AdapterError struct {
	Vendor     types.VendorType
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *AdapterError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Vendor, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Vendor, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IsKind reports whether err is an AdapterError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Kind == kind
}

// kindForStatus maps an HTTP status returned by a vendor to an error kind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return KindQuota
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return KindUnreachable
	default:
		return KindVendor
	}
}

func statusError(vendor types.VendorType, status int, err error) *AdapterError {
	return &AdapterError{Vendor: vendor, Kind: kindForStatus(status), StatusCode: status, Err: err}
}

func malformed(vendor types.VendorType, format string, args ...any) *AdapterError {
	return &AdapterError{Vendor: vendor, Kind: KindMalformed, Err: fmt.Errorf(format, args...)}
}

func unreachable(vendor types.VendorType, err error) *AdapterError {
	return &AdapterError{Vendor: vendor, Kind: KindUnreachable, Err: err}
}

// headerTransport adds static headers to every outbound request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// withHeaders returns a copy of client that sets headers on each request.
func withHeaders(client *http.Client, headers map[string]string) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	if len(headers) == 0 {
		return client
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c := *client
	c.Transport = headerTransport{base: base, headers: headers}
	return &c
}

func intPtr(v int) *int { return &v }
