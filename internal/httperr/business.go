package httperr

import (
	"errors"
	"fmt"
)

// Kind classifies a business error. Handlers map it to an HTTP status.
type Kind int

const (
	KindInvalid Kind = iota
	KindNotFound
	KindPolicyViolation
	KindSlotUnavailable
	KindForbidden
	KindInvalidSignature
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPolicyViolation:
		return "policy_violation"
	case KindSlotUnavailable:
		return "slot_unavailable"
	case KindForbidden:
		return "forbidden"
	case KindInvalidSignature:
		return "invalid_signature"
	default:
		return "invalid"
	}
}

// BusinessError is an expected, user-facing failure. Code is stable and
// machine readable, Message explains the specific rule that was violated.
type BusinessError struct {
	Kind    Kind
	Code    string
	Message string
}

func (e BusinessError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func ErrBusiness(kind Kind, code, format string, args ...any) error {
	return BusinessError{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Invalid(code, format string, args ...any) error {
	return ErrBusiness(KindInvalid, code, format, args...)
}

func NotFoundErr(code, format string, args ...any) error {
	return ErrBusiness(KindNotFound, code, format, args...)
}

func PolicyViolation(code, format string, args ...any) error {
	return ErrBusiness(KindPolicyViolation, code, format, args...)
}

func SlotUnavailable(code, format string, args ...any) error {
	return ErrBusiness(KindSlotUnavailable, code, format, args...)
}

func Forbidden(code, format string, args ...any) error {
	return ErrBusiness(KindForbidden, code, format, args...)
}

func InvalidSignature(format string, args ...any) error {
	return ErrBusiness(KindInvalidSignature, "invalid_signature", format, args...)
}

// AsBusiness unwraps err into a BusinessError.
func AsBusiness(err error) (BusinessError, bool) {
	var be BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return BusinessError{}, false
}

func IsBusiness(err error, code string) bool {
	be, ok := AsBusiness(err)
	return ok && be.Code == code
}

func IsKind(err error, kind Kind) bool {
	be, ok := AsBusiness(err)
	return ok && be.Kind == kind
}
