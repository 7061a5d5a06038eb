package fund

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	assert.Equal(t, "authorization", Kind(fmt.Errorf("add asset: %w", ErrUnauthorized)))
	assert.Equal(t, "external_failure", Kind(fmt.Errorf("%w: swap: %w", ErrExternalFailure, errors.New("boom"))))
	assert.Equal(t, "insufficient_funds", Kind(fmt.Errorf("pull: %w", ErrInsufficientFunds)))
	assert.Equal(t, "unknown", Kind(errors.New("other")))
	assert.Equal(t, "unknown", Kind(nil))
}

func TestKindPrefersExternalFailure(t *testing.T) {
	err := fmt.Errorf("%w: swap trade 0: %w", ErrExternalFailure, fmt.Errorf("%w: reentrant", ErrInvalidState))
	assert.Equal(t, "external_failure", Kind(err))
}
