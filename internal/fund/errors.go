package fund

import "errors"

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrExternalFailure   = errors.New("external failure")
)

// External failures may wrap a collaborator's own error, so they are matched first.
var kinds = []struct {
	err  error
	name string
}{
	{ErrExternalFailure, "external_failure"},
	{ErrUnauthorized, "authorization"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrNotFound, "not_found"},
	{ErrInvalidState, "invalid_state"},
	{ErrInsufficientFunds, "insufficient_funds"},
}

// Kind names the error category of err, or "unknown" when it has none.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}
