package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap/zaptest"

	"trade-gateway/internal/account"
	"trade-gateway/internal/auth"
	"trade-gateway/internal/broker/paper"
	"trade-gateway/internal/config"
	"trade-gateway/internal/dispatch"
	"trade-gateway/internal/marketdata"
	"trade-gateway/internal/order"
)

var testNow = time.Unix(1700000000, 0)

type plainTrader struct{}

func (plainTrader) ExecuteProportional(context.Context, account.ProportionalOrder) (account.Receipt, error) {
	return account.Receipt{}, errors.New("券商连接断开")
}

func (plainTrader) ExecuteFixed(context.Context, account.FixedOrder) (account.Receipt, error) {
	return account.Receipt{}, errors.New("券商连接断开")
}

type outcomeBody struct {
	AccountIndex int             `json:"account_index"`
	Status       string          `json:"status"`
	Error        string          `json:"error"`
	Result       json.RawMessage `json:"result"`
}

type responseBody struct {
	Kind       string        `json:"kind"`
	Error      string        `json:"error"`
	Message    string        `json:"message"`
	SizingMode string        `json:"sizing_mode"`
	Results    []outcomeBody `json:"results"`
}

type testServer struct {
	srv    *Server
	signer auth.Signer
}

func newTestServer(t *testing.T, rl config.RateLimitConfig) *testServer {
	t.Helper()
	return newTestServerWith(t, rl, nil)
}

func newTestServerWith(t *testing.T, rl config.RateLimitConfig, journal Journal) *testServer {
	t.Helper()
	md := marketdata.NewStatic([]config.InstrumentConfig{
		{Symbol: "600000.SH", Name: "浦发银行", LastPrice: 10},
	})
	registry, err := account.NewRegistry(
		account.Account{ID: "A1", Nickname: "主账户", Trader: paper.New("A1", 100000, paper.WithMarketData(md), paper.WithPosition("600000.SH", 1000, 9))},
		account.Account{ID: "A2", Trader: paper.New("A2", 10000, paper.WithMarketData(md))},
		account.Account{ID: "A3", Trader: plainTrader{}},
	)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	creds, err := auth.NewCredentialStore(auth.Credential{ClientID: "bot", Secret: []byte("s3cret")})
	if err != nil {
		t.Fatalf("NewCredentialStore returned error: %v", err)
	}
	logger := zaptest.NewLogger(t)
	sessions := auth.SessionFunc(func(r *http.Request) bool {
		c, err := r.Cookie("session")
		return err == nil && c.Value == "ok"
	})

	srv := NewServer(config.ServerConfig{RateLimit: rl}, Deps{
		Engine:     dispatch.NewEngine(registry, dispatch.WithLogger(logger)),
		Resolver:   order.NewResolver(nil, registry.Len()),
		Verifier:   auth.NewVerifier(creds, 300*time.Second, auth.WithClock(func() time.Time { return testNow })),
		Sessions:   sessions,
		MarketData: md,
		Journal:    journal,
		Logger:     logger,
	})
	return &testServer{srv: srv, signer: auth.Signer{ClientID: "bot", Secret: []byte("s3cret")}}
}

func (ts *testServer) do(t *testing.T, method, path, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, PathPrefix+path, bytes.NewReader([]byte(body)))
	if sign {
		if err := ts.signer.SignRequest(req, []byte(body), testNow); err != nil {
			t.Fatalf("SignRequest returned error: %v", err)
		}
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid response body %q: %v", rec.Body.String(), err)
	}
}

func TestOuterTrade_FansOutWithIsolation(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	rec := ts.do(t, http.MethodPost, "/outer/trade/buy", `{"symbol":"600000","trade_price":10,"position_pct":0.1,"strategy_name":"外部策略"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Error("expected request id header")
	}

	var body responseBody
	decode(t, rec, &body)
	if body.SizingMode != string(order.ModeProportion) {
		t.Errorf("expected proportion mode, got %q", body.SizingMode)
	}
	if len(body.Results) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(body.Results))
	}
	for i, o := range body.Results {
		if o.AccountIndex != i {
			t.Errorf("outcome %d has account index %d", i, o.AccountIndex)
		}
	}
	if body.Results[0].Status != "success" || body.Results[1].Status != "success" {
		t.Errorf("paper accounts should succeed: %+v", body.Results)
	}
	if body.Results[2].Status != "failed" || body.Results[2].Error == "" {
		t.Errorf("plain trader should fail in isolation: %+v", body.Results[2])
	}

	var receipt account.Receipt
	if err := json.Unmarshal(body.Results[0].Result, &receipt); err != nil {
		t.Fatalf("invalid receipt: %v", err)
	}
	if receipt.Quantity != 1100 {
		t.Errorf("expected 1100 shares from 10%% of 110000, got %d", receipt.Quantity)
	}
}

func TestOuterTrade_TargetsSingleAccount(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	rec := ts.do(t, http.MethodPost, "/outer/trade/sell", `{"symbol":"600000.SH","trade_price":10,"order_num":500,"trader_index":0}`, true)
	var body responseBody
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || len(body.Results) != 1 || body.Results[0].Status != "success" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestOuterTrade_RejectsBeforeDispatch(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	tests := []struct {
		name   string
		path   string
		body   string
		sign   bool
		status int
		kind   string
	}{
		{"missing envelope", "/outer/trade/buy", `{"symbol":"600000","trade_price":10,"position_pct":0.1}`, false, http.StatusUnauthorized, "malformed_envelope"},
		{"unsupported operation", "/outer/trade/short", `{}`, true, http.StatusBadRequest, "unsupported_operation"},
		{"missing price", "/outer/trade/buy", `{"symbol":"600000","position_pct":0.1}`, true, http.StatusBadRequest, "missing_field"},
		{"ambiguous sizing", "/outer/trade/buy", `{"symbol":"600000","trade_price":10,"position_pct":0.1,"order_num":100}`, true, http.StatusBadRequest, "ambiguous_sizing"},
		{"lot mismatch", "/outer/trade/buy", `{"symbol":"600000","trade_price":10,"order_num":150}`, true, http.StatusBadRequest, "lot_size_mismatch"},
		{"bad index", "/outer/trade/buy", `{"symbol":"600000","trade_price":10,"order_num":100,"trader_index":3}`, true, http.StatusBadRequest, "invalid_account_index"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tc.path, tc.body, tc.sign)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			var body responseBody
			decode(t, rec, &body)
			if body.Kind != tc.kind {
				t.Errorf("expected kind %q, got %q", tc.kind, body.Kind)
			}
			if body.Results != nil {
				t.Errorf("rejected request must not carry results: %s", rec.Body.String())
			}
		})
	}
}

func TestOuterTrade_TamperedBodyIsRejected(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	signed := []byte(`{"symbol":"600000","trade_price":10,"position_pct":0.1}`)
	req := httptest.NewRequest(http.MethodPost, PathPrefix+"/outer/trade/buy",
		bytes.NewReader([]byte(`{"symbol":"600000","trade_price":10,"position_pct":0.9}`)))
	if err := ts.signer.SignRequest(req, signed, testNow); err != nil {
		t.Fatalf("SignRequest returned error: %v", err)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)

	var body responseBody
	decode(t, rec, &body)
	if rec.Code != http.StatusUnauthorized || body.Kind != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAccounts_SessionOrSignature(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	req := httptest.NewRequest(http.MethodGet, PathPrefix+"/accounts", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "ok"})
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Accounts []accountInfo `json:"accounts"`
	}
	decode(t, rec, &body)
	if len(body.Accounts) != 3 || body.Accounts[0].NickName != "主账户" || body.Accounts[2].NickName != "账户3" {
		t.Errorf("unexpected accounts %+v", body.Accounts)
	}

	if rec := ts.do(t, http.MethodGet, "/accounts", "", true); rec.Code != http.StatusOK {
		t.Errorf("signed caller should pass, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/accounts", "", false); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous caller should be rejected, got %d", rec.Code)
	}
}

func TestPositions_AreEnriched(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	rec := ts.do(t, http.MethodGet, "/positions/0", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Positions []account.Position `json:"positions"`
	}
	decode(t, rec, &body)
	if len(body.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(body.Positions))
	}
	p := body.Positions[0]
	if p.Name != "浦发银行" || p.CurrentPrice != 10 || p.Profit != 1000 {
		t.Errorf("unexpected enriched position %+v", p)
	}
}

func TestPortfolioAndCapabilities(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	rec := ts.do(t, http.MethodGet, "/portfolio/1", "", true)
	var body struct {
		Portfolio account.Portfolio `json:"portfolio"`
	}
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body.Portfolio.Cash != 10000 {
		t.Errorf("unexpected portfolio %d %s", rec.Code, rec.Body.String())
	}

	if rec := ts.do(t, http.MethodGet, "/portfolio/2", "", true); rec.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 for account without portfolio, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/portfolio/x", "", true); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid index, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/order", `{"trader_index":2,"order_id":"1"}`, true); rec.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 for account without order management, got %d", rec.Code)
	}
}

func TestOrderManagement(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	rec := ts.do(t, http.MethodPost, "/outer/trade/buy", `{"symbol":"600000","trade_price":9,"fixed_quantity":100,"trader_index":1}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/orders", `{"trader_index":1,"cancelable_only":true}`, true)
	var orders []account.Order
	decode(t, rec, &orders)
	if len(orders) != 1 || orders[0].StatusName != "已报" {
		t.Fatalf("expected one reported order, got %s", rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/cancel_orders/buy", `{"trader_index":1}`, true)
	var cancel responseBody
	decode(t, rec, &cancel)
	if rec.Code != http.StatusOK || len(cancel.Results) != 1 || cancel.Results[0].Status != "success" {
		t.Fatalf("unexpected cancel-all response %s", rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/cancel_order", `{"trader_index":1,"order_id":`+orders[0].OrderID+`}`, true)
	var res account.CancelResult
	decode(t, rec, &res)
	if rec.Code != http.StatusOK || res.Success {
		t.Errorf("second cancel should report failure, got %s", rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/order", `{"trader_index":1,"order_id":"missing"}`, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown order, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/orders", `{}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("trader_index is required, got %d", rec.Code)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	if rec := ts.do(t, http.MethodGet, "/accounts", "", true); rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}
	rec := ts.do(t, http.MethodGet, "/accounts", "", true)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestHealthAndNotFound(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	if rec := ts.do(t, http.MethodGet, "/health", "", false); rec.Code != http.StatusOK {
		t.Errorf("expected health 200, got %d", rec.Code)
	}
	rec := ts.do(t, http.MethodGet, "/nope", "", false)
	var body responseBody
	decode(t, rec, &body)
	if rec.Code != http.StatusNotFound || body.Kind != kindNotFound {
		t.Errorf("expected JSON 404, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestOversizedBodyIsRejected(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	notifier := &recordingNotifier{}
	ts.srv.notifier = notifier

	large := `{"symbol":"600000","strategy_name":"` + strings.Repeat("x", 1<<20) + `"}`
	for _, sign := range []bool{true, false} {
		rec := ts.do(t, http.MethodPost, "/outer/trade/buy", large, sign)
		var body responseBody
		decode(t, rec, &body)
		if rec.Code != http.StatusRequestEntityTooLarge || body.Kind != kindRequestTooLarge {
			t.Errorf("sign=%v: expected 413, got %d %s", sign, rec.Code, body.Kind)
		}
	}
	if len(notifier.titles) != 0 {
		t.Errorf("oversized request must not dispatch, got %v", notifier.titles)
	}
}
