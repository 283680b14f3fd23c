package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/mergegate/internal/event"
)

// ErrRunFailed is returned by a one-shot run whose aggregate result did not
// pass, so the process exits non-zero for scripting use.
var ErrRunFailed = fmt.Errorf("run did not pass")

// runOnce triggers a single run for the configured event file and prints
// its result.
func (a *App) runOnce(ctx context.Context) error {
	ev, err := event.LoadFile(a.config.EventPath)
	if err != nil {
		return err
	}
	a.logger.Info("🚀 Starting run.", "ref", ev.Ref, "sha", ev.SHA)

	res, err := a.coord.Trigger(ctx, ev)
	if err != nil {
		return fmt.Errorf("run failed to start: %w", err)
	}

	ids := make([]string, 0, len(res.Instances))
	for id := range res.Instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(a.outW, "%-12s %s\n", res.Instances[id].String(), id)
	}
	gates := make([]string, 0, len(res.Gates))
	for name := range res.Gates {
		gates = append(gates, name)
	}
	sort.Strings(gates)
	for _, name := range gates {
		fmt.Fprintf(a.outW, "%-12s gate %s\n", res.Gates[name].String(), name)
	}

	if !res.Passed {
		fmt.Fprintf(a.outW, "result: failed (run %s)\n", res.RunID)
		return ErrRunFailed
	}
	fmt.Fprintf(a.outW, "result: passed (run %s)\n", res.RunID)
	return nil
}
