// Package invites tracks issued invite tokens by their jti so that each
// token is consumed exactly once.
package invites

import (
	"context"
	"time"
)

// Record is one issued invite.
type Record struct {
	JTI          string
	TargetUserID string
	ExpiresAt    time.Time
	ConsumedAt   *time.Time
}

// Repository stores invite issuance and consumption state.
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	// Consume marks the invite used. It fails with common.ErrTokenUsed if
	// it was consumed before, common.ErrTokenExpired if past its expiry,
	// and common.ErrNotFound for unknown tokens.
	Consume(ctx context.Context, jti string, now time.Time) (*Record, error)
}
