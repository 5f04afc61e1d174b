package txpool

import "errors"

// PoolError is the typed admission-rejection taxonomy from spec §7.
type PoolError struct {
	Code   string
	Reason string
}

func (e *PoolError) Error() string {
	if e.Reason == "" {
		return "txpool: " + e.Code
	}
	return "txpool: " + e.Code + ": " + e.Reason
}

// newPoolError builds a *PoolError with the given code and reason.
func newPoolError(code, reason string) *PoolError {
	return &PoolError{Code: code, Reason: reason}
}

// Admission rejection codes (spec §7).
const (
	CodeMalformed         = "MALFORMED"
	CodeInvalidSignature  = "INVALID_SIGNATURE"
	CodeUnknownAsset      = "UNKNOWN_ASSET"
	CodeOverSize          = "OVER_SIZE"
	CodeRateLimited       = "RATE_LIMITED"
	CodeBadNonce          = "BAD_NONCE"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeBusy              = "BUSY"
	CodeDuplicate         = "DUPLICATE"
)

// ErrNilPool is returned when a method is called on a nil *Pool.
var ErrNilPool = errors.New("txpool: nil pool")

// IsCode reports whether err is a *PoolError with the given code.
func IsCode(err error, code string) bool {
	var pe *PoolError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code == code
}
