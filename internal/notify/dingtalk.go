// Package notify 把批量执行结果推送到钉钉群机器人。
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"trade-gateway/internal/config"
)

// ErrRejected 钉钉返回非零 errcode。
var ErrRejected = errors.New("notify: 钉钉拒绝消息")

// DingTalk 钉钉群机器人客户端，使用加签方式鉴权。
type DingTalk struct {
	endpoint    string
	accessToken string
	secret      string
	atAll       bool
	client      *http.Client
	now         func() time.Time
}

// NewDingTalk 根据配置创建客户端。
func NewDingTalk(cfg config.DingTalkConfig) (*DingTalk, error) {
	if cfg.AccessToken == "" || cfg.Secret == "" {
		return nil, errors.New("notify: 钉钉 access_token 与 secret 不能为空")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://oapi.dingtalk.com/robot/send"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DingTalk{
		endpoint:    endpoint,
		accessToken: cfg.AccessToken,
		secret:      cfg.Secret,
		atAll:       cfg.AtAll,
		client:      &http.Client{Timeout: timeout},
		now:         time.Now,
	}, nil
}

type textMessage struct {
	At struct {
		IsAtAll bool `json:"isAtAll"`
	} `json:"at"`
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
	MsgType string `json:"msgtype"`
}

type sendResult struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// SendText 发送文本消息，HTTP 200 且 errcode 为 0 视为成功。
func (d *DingTalk) SendText(ctx context.Context, content string) error {
	var msg textMessage
	msg.At.IsAtAll = d.atAll
	msg.Text.Content = content
	msg.MsgType = "text"
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: 编码消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.signedURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: 构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: 发送钉钉消息失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("notify: 读取钉钉响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode)
	}
	var result sendResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("notify: 解析钉钉响应失败: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("%w: errcode=%d errmsg=%s", ErrRejected, result.ErrCode, result.ErrMsg)
	}
	return nil
}

func (d *DingTalk) signedURL() string {
	ts := d.now().UnixMilli()
	q := url.Values{}
	q.Set("access_token", d.accessToken)
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", sign(d.secret, ts))
	return d.endpoint + "?" + q.Encode()
}

// sign 计算 base64(HMAC-SHA256(secret, "timestamp\nsecret"))。
func sign(secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d\n%s", timestamp, secret)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
