package runtime

import (
	"context"
	"os/signal"
	"syscall"
)

// SignalContext is cancelled on SIGINT or SIGTERM. The HTTP server and the
// outbox publisher both drain when it fires.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
