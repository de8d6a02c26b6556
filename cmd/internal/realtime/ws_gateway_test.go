package realtime

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"ripple/cmd/internal/chat"
)

func TestAccessTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?access_token=query-token", nil)
	if got := accessTokenFromRequest(r); got != "query-token" {
		t.Fatalf("query token = %q", got)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	if got := accessTokenFromRequest(r); got != "header-token" {
		t.Fatalf("header token = %q", got)
	}

	// Header wins over query when both are present.
	r = httptest.NewRequest("GET", "/ws?access_token=query-token", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	if got := accessTokenFromRequest(r); got != "header-token" {
		t.Fatalf("precedence token = %q", got)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if got := accessTokenFromRequest(r); got != "" {
		t.Fatalf("empty request token = %q", got)
	}
}

func TestEnforceOrigin(t *testing.T) {
	g := &WSGateway{
		originRequired: true,
		allowedOrigins: []string{"http://localhost", "https://app.example.com"},
	}

	cases := []struct {
		origin string
		ok     bool
	}{
		{"", false},
		{"http://localhost", true},
		{"http://localhost:5173", true}, // host match ignores port
		{"https://app.example.com", true},
		{"https://evil.example.net", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		err := g.enforceOrigin(r)
		if tc.ok && err != nil {
			t.Errorf("origin %q rejected: %v", tc.origin, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("origin %q accepted", tc.origin)
		}
	}
}

func TestClassifyReadErr(t *testing.T) {
	var syntaxErr error
	if err := json.Unmarshal([]byte("{nope"), &struct{}{}); err != nil {
		syntaxErr = err
	}
	if got := classifyReadErr(syntaxErr); got != readErrBadJSON {
		t.Fatalf("syntax error classified as %v", got)
	}
	if got := classifyReadErr(errors.New("tls handshake broke")); got != readErrUnknown {
		t.Fatalf("unknown error classified as %v", got)
	}
}

func TestErrCodes(t *testing.T) {
	if got := sendErrCode(chat.ErrForbidden); got != "forbidden" {
		t.Fatalf("sendErrCode forbidden = %q", got)
	}
	if got := sendErrCode(chat.ErrValidation); got != "invalid" {
		t.Fatalf("sendErrCode validation = %q", got)
	}
	if got := joinErrCode(chat.ErrNotFound); got != "not_found" {
		t.Fatalf("joinErrCode not found = %q", got)
	}
	if got := joinErrCode(errors.New("boom")); got != "join_failed" {
		t.Fatalf("joinErrCode fallback = %q", got)
	}
}
