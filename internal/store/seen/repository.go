// Package seen records which relay event ids have already been applied,
// making event application idempotent across relay redelivery and
// multi-relay fan-in.
package seen

import (
	"context"
	"time"
)

// Repository tracks applied event ids per domain.
type Repository interface {
	// MarkSeen records the event id and reports whether it was new.
	MarkSeen(ctx context.Context, eventID, domain string, at time.Time) (bool, error)
	IsSeen(ctx context.Context, eventID, domain string) (bool, error)
}
