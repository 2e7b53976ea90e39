package auth

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Signer 客户端签名工具。
type Signer struct {
	ClientID string
	Secret   []byte
}

// Sign 计算签名，body 按服务端相同的规则规范化。
func (s Signer) Sign(method, path, query string, body []byte, ts int64) (string, error) {
	canonicalBody, err := CanonicalBody(method, body)
	if err != nil {
		return "", fmt.Errorf("auth: 规范化请求体失败: %w", err)
	}
	canonical := CanonicalString(method, path, query, canonicalBody, strconv.FormatInt(ts, 10), s.ClientID)
	return hex.EncodeToString(computeMAC(s.Secret, canonical)), nil
}

// Headers 返回三个签名请求头。
func (s Signer) Headers(method, path, query string, body []byte, now time.Time) (http.Header, error) {
	ts := now.Unix()
	sig, err := s.Sign(method, path, query, body, ts)
	if err != nil {
		return nil, err
	}
	h := make(http.Header, 3)
	h.Set(HeaderClientID, s.ClientID)
	h.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	h.Set(HeaderSignature, sig)
	return h, nil
}

// SignRequest 为已构造好的请求写入签名头，body 需与请求实际发送的内容一致。
func (s Signer) SignRequest(req *http.Request, body []byte, now time.Time) error {
	h, err := s.Headers(req.Method, req.URL.Path, req.URL.RawQuery, body, now)
	if err != nil {
		return err
	}
	for k, v := range h {
		req.Header[k] = v
	}
	return nil
}
