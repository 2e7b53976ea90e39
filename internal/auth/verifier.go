package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// 签名信封请求头。
const (
	HeaderClientID  = "X-Client-ID"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// DefaultSignatureTimeout 默认允许的时间戳偏差。
const DefaultSignatureTimeout = 300 * time.Second

// DefaultMaxBodyBytes 校验前允许读取的最大请求体。
const DefaultMaxBodyBytes int64 = 1 << 20

// ErrBodyTooLarge 请求体超过上限，在签名校验之前返回。
var ErrBodyTooLarge = errors.New("auth: 请求体过大")

// SignedRequest 为一次校验所需的全部原始输入。
type SignedRequest struct {
	Method    string
	Path      string
	Query     string
	Body      []byte
	Timestamp string
	ClientID  string
	Signature string
}

// Verifier 校验 HMAC-SHA256 签名，无状态，不记录已使用的时间戳。
type Verifier struct {
	creds   CredentialLookup
	timeout time.Duration
	maxBody int64
	now     func() time.Time
	logger  *zap.Logger
	dummy   []byte
}

// VerifierOption 配置 Verifier。
type VerifierOption func(*Verifier)

// WithClock 替换时间来源。
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// WithMaxBodyBytes 限制读取的请求体大小，非正值使用 DefaultMaxBodyBytes。
func WithMaxBodyBytes(n int64) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.maxBody = n
		}
	}
}

// WithLogger 设置日志。
func WithLogger(logger *zap.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewVerifier 创建校验器，timeout 非正时使用 DefaultSignatureTimeout。
func NewVerifier(creds CredentialLookup, timeout time.Duration, opts ...VerifierOption) *Verifier {
	if timeout <= 0 {
		timeout = DefaultSignatureTimeout
	}
	dummy := make([]byte, 32)
	_, _ = rand.Read(dummy)

	v := &Verifier{
		creds:   creds,
		timeout: timeout,
		maxBody: DefaultMaxBodyBytes,
		now:     time.Now,
		logger:  zap.NewNop(),
		dummy:   dummy,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify 校验签名，失败时返回 *Error。
func (v *Verifier) Verify(req SignedRequest) error {
	err := v.verify(req)
	if err != nil {
		kind := KindMalformedEnvelope
		var authErr *Error
		if errors.As(err, &authErr) {
			kind = authErr.Kind
		}
		v.logger.Warn("签名验证失败",
			zap.String("kind", string(kind)),
			zap.String("client_id", req.ClientID),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("timestamp", req.Timestamp),
		)
		return err
	}
	v.logger.Debug("签名验证成功", zap.String("client_id", req.ClientID), zap.String("path", req.Path))
	return nil
}

func (v *Verifier) verify(req SignedRequest) error {
	if req.ClientID == "" || req.Timestamp == "" || req.Signature == "" {
		return malformed("缺少必要的签名验证参数")
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(req.Timestamp), 10, 64)
	if err != nil {
		return malformed("无效的时间戳格式")
	}
	skew := v.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > v.timeout {
		return ErrExpiredTimestamp
	}

	body, err := CanonicalBody(req.Method, req.Body)
	if err != nil {
		return err
	}
	canonical := CanonicalString(req.Method, req.Path, req.Query, body, req.Timestamp, req.ClientID)

	secret, ok := v.creds.Lookup(req.ClientID)
	if !ok {
		// 仍然计算一次摘要，使未知客户端与签名错误的耗时一致。
		_ = signatureMatches(v.dummy, canonical, req.Signature)
		return ErrUnknownClient
	}

	if !signatureMatches(secret, canonical, req.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyHTTP 从 HTTP 请求中提取信封并校验，请求体会被重新放回 r.Body。
func (v *Verifier) VerifyHTTP(r *http.Request) (string, error) {
	body, err := readBody(r, v.maxBody)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			v.logger.Warn("请求体超过上限", zap.Int64("limit", tooLarge.Limit), zap.String("path", r.URL.Path))
			return "", ErrBodyTooLarge
		}
		return "", malformed("读取请求体失败")
	}
	req := SignedRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Body:      body,
		Timestamp: r.Header.Get(HeaderTimestamp),
		ClientID:  r.Header.Get(HeaderClientID),
		Signature: r.Header.Get(HeaderSignature),
	}
	if err := v.Verify(req); err != nil {
		return "", err
	}
	return req.ClientID, nil
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func computeMAC(secret []byte, canonical string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(canonical))
	return mac.Sum(nil)
}

// signatureMatches 以小写十六进制字符串做常量时间比较，与 hexdigest 的输出一致。
func signatureMatches(secret []byte, canonical, sig string) bool {
	expected := hex.EncodeToString(computeMAC(secret, canonical))
	return hmac.Equal([]byte(expected), []byte(sig))
}
