// Package notifier defines the alert notification sink and
// ships a log15-backed reference implementation. A production
// deployment swaps in a Slack/PagerDuty/webhook-backed Sink satisfying
// the same interface.
package notifier

import (
	"context"

	"github.com/babylon-chain/liveness-monitor/internal/types"
)

// Sink delivers an alert out of process. The alert governor treats a
// returned error as terminal for that alert — it does not retry.
type Sink interface {
	SendAlert(ctx context.Context, alert types.Alert) error
}
