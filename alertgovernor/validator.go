package alertgovernor

import (
	"context"
	"fmt"
	"time"

	"github.com/babylon-chain/liveness-monitor/internal/types"
)

// EvaluateValidatorStats applies the rate-threshold hysteresis and
// consecutive-miss rules to a validator block-signature update.
func (g *Governor) EvaluateValidatorStats(ctx context.Context, stats types.ValidatorSignatureStats, now time.Time) {
	if !g.isTrackedValidator(stats.SubjectKey) {
		return
	}
	key := alertKey("validator", stats.SubjectKey)
	lock := g.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	state := g.stateFor(key)

	g.evaluateRateHysteresis(ctx, state, rateHysteresisInput{
		subjectKey:    stats.SubjectKey,
		subjectLabel:  "validator",
		totalInWindow: stats.TotalBlocksInWindow,
		rate:          stats.SignatureRate,
		threshold:     g.cfg.ValidatorThreshold,
		dropStep:      g.cfg.ValidatorDropStep,
		bucketed:      false,
		now:           now,
	})

	g.evaluateConsecutiveMiss(ctx, state, stats.SubjectKey, stats.ConsecutiveMissed, now)
}

// evaluateConsecutiveMiss implements the consecutive-miss rule:
// a CRITICAL alert fires once the run length crosses the threshold, and
// is cleared (so a future crossing can re-alert) only once the run
// returns to zero.
func (g *Governor) evaluateConsecutiveMiss(ctx context.Context, state *types.AlertState, subjectKey string, consecutiveMissed uint64, now time.Time) {
	if consecutiveMissed >= g.cfg.ConsecutiveMissThreshold && !state.SentCritical {
		g.send(ctx, types.Alert{
			Title:     "validator missed consecutive blocks",
			Message:   fmt.Sprintf("validator %s missed %d consecutive blocks", subjectKey, consecutiveMissed),
			Severity:  types.SeverityCritical,
			Timestamp: now,
			Metadata: map[string]string{
				"subjectKey":        subjectKey,
				"consecutiveMissed": fmt.Sprintf("%d", consecutiveMissed),
			},
		})
		state.SentCritical = true
		state.LastCriticalTime = now
		return
	}
	if consecutiveMissed == 0 {
		state.SentCritical = false
	}
}
