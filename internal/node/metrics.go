package node

import (
	"context"
	"strconv"

	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/ledger"
	"github.com/0gfoundation/nova-relay/internal/metrics"
	"github.com/0gfoundation/nova-relay/internal/sandbox"
)

// countEvents is a commit hook that feeds committed protocol events into the
// Prometheus counters.
func countEvents(_ context.Context, events []chain.Event) {
	for _, ev := range events {
		switch d := ev.Data.(type) {
		case sandbox.ExecEvent:
			outcome := sandbox.Success
			if d.Reverted {
				outcome = sandbox.SoftRevert
			}
			metrics.ExecOutcomes.WithLabelValues(outcome.String()).Inc()
		case ledger.RequestExecEvent, ledger.SpeedUpRequestEvent:
			metrics.Requests.Inc()
		case ledger.ExecCompletedEvent:
			metrics.Settlements.WithLabelValues(strconv.FormatBool(d.Reverted)).Inc()
		}
	}
}
