package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"go.uber.org/zap/zaptest"

	"trade-gateway/internal/config"
	"trade-gateway/internal/dispatch"
	"trade-gateway/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(ctx, config.DatabaseConfig{InMemory: true, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(ctx, st, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func TestService_RecordAndListByType(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordDispatch(ctx, DispatchPayload{
		RequestID: "req-1",
		Operation: "buy",
		Symbol:    "600000.SH",
		Succeeded: 1,
		Failed:    1,
		Outcomes: []dispatch.Outcome{
			{AccountIndex: 0, Status: dispatch.StatusSuccess},
			{AccountIndex: 1, Status: dispatch.StatusFailed, Error: "资金不足"},
		},
	})
	svc.RecordCancelAll(ctx, DispatchPayload{RequestID: "req-2", Operation: "buy"})
	svc.RecordError(ctx, "请求处理失败", errors.New("boom"), map[string]interface{}{"path": "/x"})

	all, err := svc.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].Type != EventError || all[2].Type != EventDispatch {
		t.Errorf("expected newest first, got %s ... %s", all[0].Type, all[2].Type)
	}

	dispatches, err := svc.ListEvents(ctx, EventDispatch, 10)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(dispatches) != 1 {
		t.Fatalf("expected 1 dispatch event, got %d", len(dispatches))
	}
	encoded, err := json.Marshal(dispatches[0].Payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw := string(encoded)
	for _, want := range []string{`"request_id":"req-1"`, `"failed":1`, `"error":"资金不足"`} {
		if !strings.Contains(raw, want) {
			t.Errorf("payload %s missing %s", raw, want)
		}
	}
	if dispatches[0].Timestamp.IsZero() {
		t.Error("expected timestamp to round-trip")
	}
}

func TestService_ListLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		svc.RecordCancelAll(ctx, DispatchPayload{Operation: "sell"})
	}
	events, err := svc.ListEvents(ctx, EventCancelAll, 2)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestParseEventType(t *testing.T) {
	if _, ok := ParseEventType("dispatch"); !ok {
		t.Error("dispatch should be accepted")
	}
	if _, ok := ParseEventType("ai_decision"); ok {
		t.Error("unknown type should be rejected")
	}
}

func TestNewService_RequiresStore(t *testing.T) {
	if _, err := NewService(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
