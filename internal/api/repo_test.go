package api

import (
	"context"
	"net/http"
	"sync"
	"testing"

	json "github.com/goccy/go-json"

	"trade-gateway/internal/account"
	"trade-gateway/internal/config"
	"trade-gateway/internal/dispatch"
	"trade-gateway/internal/monitor"
)

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
	last   monitor.DispatchPayload
}

func (n *recordingNotifier) NotifyDispatch(_ context.Context, title string, payload monitor.DispatchPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.last = payload
}

type reverseRepoBody struct {
	Kind          string        `json:"kind"`
	Error         string        `json:"error"`
	Message       string        `json:"message"`
	ReserveAmount float64       `json:"reserve_amount"`
	Results       []outcomeBody `json:"results"`
}

func TestReverseRepo_FansOutWithIsolation(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	notifier := &recordingNotifier{}
	ts.srv.notifier = notifier

	rec := ts.do(t, http.MethodPost, "/trade/nhg", `{"reserve_amount":2000}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body reverseRepoBody
	decode(t, rec, &body)
	if body.Message != "逆回购执行完成" || body.ReserveAmount != 2000 {
		t.Errorf("unexpected response %s", rec.Body.String())
	}
	if len(body.Results) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(body.Results))
	}

	for i, want := range []int64{980, 80} {
		o := body.Results[i]
		if o.Status != "success" {
			t.Fatalf("account %d should succeed: %+v", i, o)
		}
		var receipt account.Receipt
		if err := json.Unmarshal(o.Result, &receipt); err != nil {
			t.Fatalf("invalid receipt: %v", err)
		}
		if receipt.Symbol != dispatch.ReverseRepoSymbol || receipt.Quantity != want {
			t.Errorf("account %d: expected %d of %s, got %+v", i, want, dispatch.ReverseRepoSymbol, receipt)
		}
	}
	if body.Results[2].Status != "failed" || body.Results[2].Error == "" {
		t.Errorf("account without portfolio should fail in isolation: %+v", body.Results[2])
	}

	if len(notifier.titles) != 1 || notifier.titles[0] != "逆回购执行完成" {
		t.Fatalf("expected one notification, got %v", notifier.titles)
	}
	if notifier.last.Symbol != dispatch.ReverseRepoSymbol || notifier.last.Succeeded != 2 || notifier.last.Failed != 1 {
		t.Errorf("unexpected notification payload %+v", notifier.last)
	}
}

func TestReverseRepo_TargetsSingleAccount(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	rec := ts.do(t, http.MethodPost, "/trade/nhg", `{"trader_index":1}`, true)
	var body reverseRepoBody
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || len(body.Results) != 1 || body.Results[0].AccountIndex != 1 || body.Results[0].Status != "success" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if body.ReserveAmount != 0 {
		t.Errorf("reserve amount should default to 0, got %v", body.ReserveAmount)
	}
}

func TestReverseRepo_RejectsBeforeDispatch(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	tests := []struct {
		name   string
		body   string
		sign   bool
		status int
		kind   string
	}{
		{"negative reserve", `{"reserve_amount":-1}`, true, http.StatusBadRequest, "invalid_amount"},
		{"bad index", `{"trader_index":9}`, true, http.StatusBadRequest, "invalid_account_index"},
		{"unsigned", `{}`, false, http.StatusUnauthorized, "malformed_envelope"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/trade/nhg", tc.body, tc.sign)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			var body reverseRepoBody
			decode(t, rec, &body)
			if body.Kind != tc.kind {
				t.Errorf("expected kind %q, got %q", tc.kind, body.Kind)
			}
			if body.Results != nil {
				t.Errorf("rejected request must not carry results: %s", rec.Body.String())
			}
		})
	}

	rec := ts.do(t, http.MethodPost, "/trade/nhg", `{"reserve_amount":-5}`, true)
	var body reverseRepoBody
	decode(t, rec, &body)
	if body.Error != "保留金额不能为负数" {
		t.Errorf("unexpected error message %q", body.Error)
	}
}
