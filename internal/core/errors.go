package core

import "errors"

// Rejection codes reported to callers for display.
const (
	CodeAgreedMissing      = "AGREED_MISSING"
	CodePriorPaymentsExist = "PRIOR_PAYMENTS_EXIST"
	CodeMonthLocked        = "MONTH_LOCKED"
	CodeUnknownKey         = "UNKNOWN_KEY"
	CodeInvalidRecord      = "INVALID_RECORD"
)

// Validation rejections. The ledger or record passed in is never modified when one is returned.
var (
	ErrAgreedMissing      = errors.New("real payment requires a positive agreed payment")
	ErrPriorPaymentsExist = errors.New("payments already recorded before the joined month")
	ErrMonthLocked        = errors.New("month is before the joined month")
	ErrUnknownKey         = errors.New("unknown ledger key")
)

// RejectionCode maps a validation error to its code, or "" for any other error.
func RejectionCode(err error) string {
	switch {
	case errors.Is(err, ErrAgreedMissing):
		return CodeAgreedMissing
	case errors.Is(err, ErrPriorPaymentsExist):
		return CodePriorPaymentsExist
	case errors.Is(err, ErrMonthLocked):
		return CodeMonthLocked
	case errors.Is(err, ErrUnknownKey):
		return CodeUnknownKey
	case errors.Is(err, ErrEmptyName), errors.Is(err, ErrInvalidJoinedMonth):
		return CodeInvalidRecord
	default:
		return ""
	}
}

// IsRejection reports whether err is a validation rejection rather than a collaborator failure.
func IsRejection(err error) bool {
	return RejectionCode(err) != ""
}
