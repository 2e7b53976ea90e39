package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"trade-gateway/internal/api"
	"trade-gateway/internal/auth"
)

func TestBuildRequest_Trade(t *testing.T) {
	opts := options{symbol: "600000.SH", price: 10.5, quantity: 200, trader: 1}
	method, path, body, err := buildRequest(opts, []string{"trade", "buy"})
	if err != nil {
		t.Fatalf("buildRequest returned error: %v", err)
	}
	if method != http.MethodPost || path != api.PathPrefix+"/outer/trade/buy" {
		t.Fatalf("unexpected route %s %s", method, path)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if payload["fixed_quantity"] != float64(200) || payload["trader_index"] != float64(1) {
		t.Errorf("unexpected payload %v", payload)
	}
	if _, ok := payload["proportion"]; ok {
		t.Error("proportion must be omitted when quantity is set")
	}
}

func TestBuildRequest_ReverseRepo(t *testing.T) {
	method, path, body, err := buildRequest(options{trader: 2, reserve: 5000}, []string{"nhg"})
	if err != nil {
		t.Fatalf("buildRequest returned error: %v", err)
	}
	if method != http.MethodPost || path != api.PathPrefix+"/trade/nhg" {
		t.Fatalf("unexpected route %s %s", method, path)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if payload["reserve_amount"] != float64(5000) || payload["trader_index"] != float64(2) {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestBuildRequest_Rejects(t *testing.T) {
	cases := map[string]struct {
		opts options
		args []string
	}{
		"both_sizings":     {options{symbol: "600000.SH", proportion: 0.5, quantity: 100, trader: -1}, []string{"trade", "buy"}},
		"no_sizing":        {options{symbol: "600000.SH", trader: -1}, []string{"trade", "buy"}},
		"missing_symbol":   {options{trader: -1}, []string{"allin"}},
		"missing_index":    {options{trader: -1}, []string{"portfolio"}},
		"bad_cancel_side":  {options{trader: -1}, []string{"cancel-all", "sell"}},
		"unknown_command":  {options{trader: -1}, []string{"transfer"}},
		"negative_reserve": {options{trader: -1, reserve: -1}, []string{"nhg"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, _, err := buildRequest(tc.opts, tc.args); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRun_SignsRequests(t *testing.T) {
	creds, err := auth.NewCredentialStore(auth.Credential{ClientID: "bot", Secret: []byte("s3cret")})
	if err != nil {
		t.Fatalf("NewCredentialStore returned error: %v", err)
	}
	verifier := auth.NewVerifier(creds, 300*time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := verifier.VerifyHTTP(r); err != nil {
			http.Error(w, `{"kind":"invalid_credentials"}`, http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	opts := options{baseURL: srv.URL, clientID: "bot", secret: "s3cret", timeout: 5 * time.Second, trader: 0}
	var out bytes.Buffer
	if err := run(context.Background(), opts, []string{"cancel", "100001"}, &out); err != nil {
		t.Fatalf("run returned error: %v (%s)", err, out.String())
	}
	if !strings.Contains(out.String(), `"success": true`) {
		t.Errorf("expected pretty printed response, got %s", out.String())
	}

	opts.secret = "wrong"
	out.Reset()
	if err := run(context.Background(), opts, []string{"accounts"}, &out); err == nil {
		t.Fatal("expected error for rejected signature")
	}
}
