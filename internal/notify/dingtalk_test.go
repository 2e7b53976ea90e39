package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap/zaptest"

	"trade-gateway/internal/config"
	"trade-gateway/internal/dispatch"
	"trade-gateway/internal/monitor"
)

type robot struct {
	mu       sync.Mutex
	errcode  int
	requests []*http.Request
	messages []textMessage
}

func (r *robot) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	var msg textMessage
	_ = json.Unmarshal(body, &msg)

	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.messages = append(r.messages, msg)
	errcode := r.errcode
	r.mu.Unlock()

	errmsg := "ok"
	if errcode != 0 {
		errmsg = "keywords not in content"
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"errcode":%d,"errmsg":%q}`, errcode, errmsg)
}

func newRobot(t *testing.T, errcode int) (*robot, *httptest.Server) {
	t.Helper()
	r := &robot{errcode: errcode}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return r, srv
}

func newDingTalk(t *testing.T, endpoint string) *DingTalk {
	t.Helper()
	d, err := NewDingTalk(config.DingTalkConfig{
		Endpoint:    endpoint,
		AccessToken: "token-1",
		Secret:      "SEC123",
		AtAll:       true,
		Timeout:     time.Second,
	})
	if err != nil {
		t.Fatalf("NewDingTalk returned error: %v", err)
	}
	d.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return d
}

func TestDingTalk_SendTextSignsRequest(t *testing.T) {
	r, srv := newRobot(t, 0)
	d := newDingTalk(t, srv.URL+"/robot/send")

	if err := d.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}
	if len(r.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(r.requests))
	}
	req := r.requests[0]
	q := req.URL.Query()
	if req.Method != http.MethodPost || req.URL.Path != "/robot/send" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
	}
	if q.Get("access_token") != "token-1" || q.Get("timestamp") != "1700000000123" {
		t.Errorf("unexpected query %v", q)
	}

	mac := hmac.New(sha256.New, []byte("SEC123"))
	mac.Write([]byte("1700000000123\nSEC123"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if q.Get("sign") != want {
		t.Errorf("expected sign %q, got %q", want, q.Get("sign"))
	}

	msg := r.messages[0]
	if msg.MsgType != "text" || msg.Text.Content != "hello" || !msg.At.IsAtAll {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestDingTalk_RejectedMessage(t *testing.T) {
	_, srv := newRobot(t, 310000)
	d := newDingTalk(t, srv.URL)

	err := d.SendText(context.Background(), "hello")
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), "310000") {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestNewDingTalk_RequiresCredentials(t *testing.T) {
	if _, err := NewDingTalk(config.DingTalkConfig{AccessToken: "t"}); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestService_NotifyDispatchDelivers(t *testing.T) {
	r, srv := newRobot(t, 0)
	svc := NewService(newDingTalk(t, srv.URL), "交易通知", time.Second, zaptest.NewLogger(t))

	svc.NotifyDispatch(context.Background(), "buy交易执行完成", monitor.DispatchPayload{
		RequestID:   "req-1",
		ClientID:    "bot",
		Operation:   "buy",
		Symbol:      "600000.SH",
		Price:       10.5,
		SizingMode:  "proportion",
		SizingValue: 0.1,
		Succeeded:   1,
		Failed:      1,
		Outcomes: []dispatch.Outcome{
			{AccountIndex: 0, Status: dispatch.StatusSuccess},
			{AccountIndex: 1, Status: dispatch.StatusFailed, Error: "交易器1买入失败: 资金不足"},
		},
	})
	svc.Close()

	if len(r.messages) != 1 {
		t.Fatalf("expected one delivered message, got %d", len(r.messages))
	}
	content := r.messages[0].Text.Content
	for _, want := range []string{"【交易通知】buy交易执行完成", "req-1", "buy 600000.SH @10.500", "成功 1, 失败 1", "交易器0: 成功", "交易器1买入失败: 资金不足"} {
		if !strings.Contains(content, want) {
			t.Errorf("expected message to contain %q, got %q", want, content)
		}
	}

	svc.NotifyDispatch(context.Background(), "late", monitor.DispatchPayload{RequestID: "req-2"})
	svc.Close()
	if len(r.messages) != 1 {
		t.Errorf("messages after Close must be dropped, got %d", len(r.messages))
	}
}

type failingSender struct{ calls int }

func (f *failingSender) SendText(context.Context, string) error {
	f.calls++
	return errors.New("network down")
}

func TestService_FailureIsBestEffort(t *testing.T) {
	sender := &failingSender{}
	svc := NewService(sender, "", time.Second, zaptest.NewLogger(t))
	svc.NotifyDispatch(context.Background(), "取消所有买单完成", monitor.DispatchPayload{RequestID: "req-3", Operation: "buy"})
	svc.Close()
	if sender.calls != 1 {
		t.Errorf("expected one attempt, got %d", sender.calls)
	}
}
