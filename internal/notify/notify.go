// Package notify delivers a run's aggregate result to external consumers:
// the process log, or a socket.io endpoint feeding a live dashboard or chat
// bridge. Delivery is fire-and-forget; a sink failure never affects the run
// outcome.
package notify

import (
	"context"

	"github.com/vk/mergegate/internal/ctxlog"
	"github.com/vk/mergegate/internal/run"
)

// SlogSink reports results through the structured logger. It is the default
// sink so every run's verdict is visible even with nothing else configured.
type SlogSink struct{}

// Notify implements run.Sink.
func (SlogSink) Notify(ctx context.Context, res run.Result) error {
	logger := ctxlog.FromContext(ctx).With("runID", res.RunID, "group", res.Group)
	gates := make(map[string]string, len(res.Gates))
	for name, status := range res.Gates {
		gates[name] = status.String()
	}
	if res.Passed {
		logger.Info("✅ Run passed.", "gates", gates)
	} else {
		logger.Warn("❌ Run failed.", "gates", gates)
	}
	return nil
}
