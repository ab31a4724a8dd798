package ledger

import "errors"

// Semantic errors. Each one rejects a single event and leaves the ledger
// unchanged; the engine reports it and keeps going.
var (
	ErrMissingAmount       = errors.New("transaction amount required")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds for withdraw")
	ErrTransactionNotFound = errors.New("referenced transaction not found")
	ErrAlreadyDisputed     = errors.New("transaction already under dispute")
	ErrNotUnderDispute     = errors.New("transaction not under dispute")
	ErrNotDisputable       = errors.New("transaction cannot be disputed")
	ErrNotResolvable       = errors.New("transaction cannot be resolved")
	ErrNotChargebackable   = errors.New("transaction cannot be charged back")
	ErrUnknownKind         = errors.New("unknown event kind")
)

var semanticErrors = []error{
	ErrMissingAmount,
	ErrAccountNotFound,
	ErrInsufficientFunds,
	ErrTransactionNotFound,
	ErrAlreadyDisputed,
	ErrNotUnderDispute,
	ErrNotDisputable,
	ErrNotResolvable,
	ErrNotChargebackable,
	ErrUnknownKind,
}

// IsSemantic reports whether err rejects a single event rather than the run.
func IsSemantic(err error) bool {
	for _, target := range semanticErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
