package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/openpos/companysync/internal/common"
)

// ErrNotConnected is returned when a frame is written to a relay whose
// transport is down.
var ErrNotConnected = errors.New("relay not connected")

// ErrPoolClosed is returned by operations on a pool after Close.
var ErrPoolClosed = errors.New("relay pool closed")

// RejectedError is a relay's explicit refusal of a published event.
type RejectedError struct {
	Relay  string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("relay %s rejected event: %s", e.Relay, e.Reason)
}

// classifyDialError folds transport errors into the shared taxonomy so
// callers can distinguish timeouts from refusals without knowing the
// transport.
func classifyDialError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", common.ErrConnectionTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", common.ErrConnectionTimeout, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", common.ErrConnectionRefused, err)
	}
	return err
}
