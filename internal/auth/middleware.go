package auth

import (
	"context"
	"net/http"
)

// Mode 路由的认证方式。
type Mode int

const (
	// SignatureOnly 只接受签名请求。
	SignatureOnly Mode = iota
	// SessionOrSignature 会话已登录时跳过签名校验。
	SessionOrSignature
)

// SessionValidator 判断请求是否来自已登录的会话，登录流程由外部负责。
type SessionValidator interface {
	Authenticated(r *http.Request) bool
}

// SessionFunc 适配函数为 SessionValidator。
type SessionFunc func(r *http.Request) bool

// Authenticated 实现 SessionValidator。
func (f SessionFunc) Authenticated(r *http.Request) bool { return f(r) }

// NoSessions 不接受任何会话。
var NoSessions SessionValidator = SessionFunc(func(*http.Request) bool { return false })

// ErrorHandler 渲染认证失败响应。
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type principalKey struct{}

// Principal 认证通过的调用方。
type Principal struct {
	ClientID string
	Session  bool
}

// PrincipalFrom 读取中间件写入的调用方信息。
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithPrincipal 返回携带调用方信息的 context。
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Middleware 组合签名校验与会话校验。
type Middleware struct {
	verifier *Verifier
	sessions SessionValidator
	onError  ErrorHandler
}

// NewMiddleware 创建认证中间件，sessions 为空时不接受任何会话。
func NewMiddleware(verifier *Verifier, sessions SessionValidator, onError ErrorHandler) *Middleware {
	if sessions == nil {
		sessions = NoSessions
	}
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	return &Middleware{verifier: verifier, sessions: sessions, onError: onError}
}

// Require 返回指定认证方式的包装器。
func (m *Middleware) Require(mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mode == SessionOrSignature && m.sessions.Authenticated(r) {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), Principal{Session: true})))
				return
			}
			clientID, err := m.verifier.VerifyHTTP(r)
			if err != nil {
				m.onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), Principal{ClientID: clientID})))
		})
	}
}
