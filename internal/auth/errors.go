package auth

import "errors"

// Kind 认证失败类型。
type Kind string

const (
	KindMalformedEnvelope Kind = "malformed_envelope"
	KindExpiredTimestamp  Kind = "expired_timestamp"
	KindUnknownClient     Kind = "unknown_client"
	KindInvalidSignature  Kind = "invalid_signature"
)

// 各类型的哨兵错误，可配合 errors.Is 使用。
var (
	ErrMalformedEnvelope = &Error{Kind: KindMalformedEnvelope, Msg: "签名参数缺失或格式错误"}
	ErrExpiredTimestamp  = &Error{Kind: KindExpiredTimestamp, Msg: "请求时间戳过期"}
	ErrUnknownClient     = &Error{Kind: KindUnknownClient, Msg: "无效的客户端ID"}
	ErrInvalidSignature  = &Error{Kind: KindInvalidSignature, Msg: "签名验证失败"}
)

// Error 认证错误。
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return "auth: " + e.Msg
}

// Is 按 Kind 比较。
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// PublicKind 返回对外暴露的类型，未知客户端与签名错误统一为 invalid_credentials。
func (e *Error) PublicKind() string {
	switch e.Kind {
	case KindUnknownClient, KindInvalidSignature:
		return "invalid_credentials"
	default:
		return string(e.Kind)
	}
}

// PublicMessage 返回对外暴露的描述。
func (e *Error) PublicMessage() string {
	switch e.Kind {
	case KindUnknownClient, KindInvalidSignature:
		return "客户端凭证或签名无效"
	default:
		return e.Msg
	}
}

func malformed(msg string) *Error {
	return &Error{Kind: KindMalformedEnvelope, Msg: msg}
}
