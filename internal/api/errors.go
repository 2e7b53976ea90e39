package api

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"trade-gateway/internal/account"
	"trade-gateway/internal/auth"
	"trade-gateway/internal/dispatch"
	"trade-gateway/internal/order"
)

// 对外错误类型，认证与参数校验错误使用各自包中的 Kind。
const (
	kindInvalidRequest        = "invalid_request"
	kindRateLimited           = "rate_limited"
	kindRequestTooLarge       = "request_too_large"
	kindNotFound              = "not_found"
	kindOrderNotFound         = "order_not_found"
	kindCapabilityUnsupported = "capability_unsupported"
	kindInternal              = "internal_error"
)

var errInvalidBody = errors.New("请求体不是合法的 JSON")

type errorBody struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Kind: kind, Error: msg})
}

// writeFailure 把错误映射为 HTTP 状态码与对外类型。
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *auth.Error
	var validation *order.ValidationError
	switch {
	case errors.As(err, &authErr):
		writeError(w, http.StatusUnauthorized, authErr.PublicKind(), authErr.PublicMessage())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, string(validation.Kind), validation.Error())
	case errors.Is(err, auth.ErrBodyTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, kindRequestTooLarge, "请求体过大")
	case errors.Is(err, errInvalidBody):
		writeError(w, http.StatusBadRequest, kindInvalidRequest, err.Error())
	case errors.Is(err, account.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, kindOrderNotFound, err.Error())
	case errors.Is(err, dispatch.ErrCapabilityUnsupported):
		writeError(w, http.StatusNotImplemented, kindCapabilityUnsupported, err.Error())
	default:
		s.logger.Error("请求处理失败",
			zap.String("request_id", dispatch.RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.journal.RecordError(r.Context(), "请求处理失败", err, map[string]interface{}{
			"request_id": dispatch.RequestID(r.Context()),
			"path":       r.URL.Path,
		})
		writeError(w, http.StatusInternalServerError, kindInternal, "服务器内部错误")
	}
}
