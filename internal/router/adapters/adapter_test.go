package adapters

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/perculacms/aicore/internal/types"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindQuota},
		{http.StatusPaymentRequired, KindQuota},
		{http.StatusServiceUnavailable, KindUnreachable},
		{http.StatusBadRequest, KindVendor},
		{http.StatusInternalServerError, KindVendor},
	}

	for _, tt := range tests {
		if got := kindForStatus(tt.status); got != tt.want {
			t.Errorf("kindForStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestAdapterError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&AdapterError{Vendor: types.VendorOpenAI, Kind: KindQuota, StatusCode: 429, Err: cause})

	if !errors.Is(err, cause) {
		t.Error("AdapterError should unwrap to its cause")
	}
	if !IsKind(err, KindQuota) {
		t.Error("IsKind should match quota")
	}
	if IsKind(err, KindAuth) {
		t.Error("IsKind should not match auth")
	}
	if err.Error() != "OpenAI quota error (status 429): boom" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWithHeaders(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Tenant")
	}))
	defer srv.Close()

	client := withHeaders(&http.Client{}, map[string]string{"X-Tenant": "cms"})
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if got != "cms" {
		t.Errorf("expected X-Tenant=cms, got %q", got)
	}
}
