package order

import (
	"errors"
	"fmt"
)

// Kind 参数校验失败类型。
type Kind string

const (
	KindUnsupportedOperation Kind = "unsupported_operation"
	KindMissingField         Kind = "missing_field"
	KindInvalidPrice         Kind = "invalid_price"
	KindUnsupportedPriceType Kind = "unsupported_price_type"
	KindAmbiguousSizing      Kind = "ambiguous_sizing"
	KindProportionOutOfRange Kind = "proportion_out_of_range"
	KindLotSizeMismatch      Kind = "lot_size_mismatch"
	KindInvalidAccountIndex  Kind = "invalid_account_index"
	KindInvalidAmount        Kind = "invalid_amount"
)

// 哨兵错误，配合 errors.Is 按 Kind 匹配。
var (
	ErrUnsupportedOperation = &ValidationError{Kind: KindUnsupportedOperation}
	ErrMissingField         = &ValidationError{Kind: KindMissingField}
	ErrInvalidPrice         = &ValidationError{Kind: KindInvalidPrice}
	ErrUnsupportedPriceType = &ValidationError{Kind: KindUnsupportedPriceType}
	ErrAmbiguousSizing      = &ValidationError{Kind: KindAmbiguousSizing}
	ErrProportionOutOfRange = &ValidationError{Kind: KindProportionOutOfRange}
	ErrLotSizeMismatch      = &ValidationError{Kind: KindLotSizeMismatch}
	ErrInvalidAccountIndex  = &ValidationError{Kind: KindInvalidAccountIndex}
	ErrInvalidAmount        = &ValidationError{Kind: KindInvalidAmount}
)

// ValidationError 下单参数校验错误，Lot 与 Unit 仅在 LotSizeMismatch 时有值。
type ValidationError struct {
	Kind  Kind
	Field string
	Msg   string
	Lot   int64
	Unit  string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return "order: " + string(e.Kind)
	}
	return e.Msg
}

// Is 按 Kind 比较。
func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func invalid(kind Kind, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Msg: fmt.Sprintf(format, args...)}
}
