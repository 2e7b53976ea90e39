package api

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trade-gateway/internal/auth"
	"trade-gateway/internal/config"
	"trade-gateway/internal/dispatch"
)

const headerRequestID = "X-Request-ID"

// requestID 复用调用方的 X-Request-ID，否则生成新的 ID。
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(dispatch.WithRequestID(r.Context(), id)))
	})
}

// limitBody 限制请求体大小，n <= 0 时使用默认上限。
func limitBody(n int64) func(http.Handler) http.Handler {
	if n <= 0 {
		n = auth.DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("请求处理发生 panic",
					zap.String("request_id", dispatch.RequestID(r.Context())),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
				)
				s.journal.RecordError(r.Context(), "请求处理发生 panic", fmt.Errorf("%v", rec), map[string]interface{}{
					"path": r.URL.Path,
				})
				writeError(w, http.StatusInternalServerError, kindInternal, "服务器内部错误")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimiter 按认证后的客户端维护令牌桶，会话调用方按来源地址区分。
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(callerKey(r)) {
			writeError(w, http.StatusTooManyRequests, kindRateLimited, "请求过于频繁")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok && p.ClientID != "" {
		return "client:" + p.ClientID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "session:" + host
}
