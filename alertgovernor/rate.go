package alertgovernor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/babylon-chain/liveness-monitor/internal/types"
)

// rateHysteresisInput parameterizes the shared rate-drop/recovery rule
// that both the validator and finality-provider families apply.
type rateHysteresisInput struct {
	subjectKey   string
	subjectLabel string
	totalInWindow uint64
	rate         float64
	threshold    float64
	dropStep     float64
	bucketed     bool
	now          time.Time
}

// rateBucket maps a rate to its 5-point bucket, used by the
// finality-provider variant of the hysteresis rule in place of a flat
// point-drop step.
func rateBucket(rate float64) int {
	return int(math.Floor(rate / defaultFinalityProviderBucket))
}

// evaluateRateHysteresis implements the shared LOW/RECOVERY rate rule:
// a LOW alert fires the first time the rate crosses below threshold, or
// after it has dropped a further full step since the last alerted rate,
// subject to the minimum alert interval; a RECOVERY alert fires once the
// rate returns to or above threshold.
func (g *Governor) evaluateRateHysteresis(ctx context.Context, state *types.AlertState, in rateHysteresisInput) {
	if in.totalInWindow < minWindowForRateRule {
		return
	}

	elapsed := in.now.Sub(state.LastRateAlertTime) >= g.cfg.MinAlertInterval

	if in.rate < in.threshold {
		firstAlert := state.LastAlertedRate == 0
		var droppedEnough bool
		if !firstAlert {
			if in.bucketed {
				droppedEnough = rateBucket(in.rate) < rateBucket(state.LastAlertedRate)
			} else {
				droppedEnough = in.rate <= state.LastAlertedRate-in.dropStep
			}
		}
		if (firstAlert || droppedEnough) && elapsed {
			g.send(ctx, types.Alert{
				Title:     fmt.Sprintf("%s signature rate low", in.subjectLabel),
				Message:   fmt.Sprintf("%s %s signature rate dropped to %.2f%% (threshold %.2f%%)", in.subjectLabel, in.subjectKey, in.rate, in.threshold),
				Severity:  types.SeverityWarning,
				Timestamp: in.now,
				Metadata: map[string]string{
					"subjectKey": in.subjectKey,
					"rate":       fmt.Sprintf("%.2f", in.rate),
				},
			})
			state.LastAlertedRate = in.rate
			state.LastRateAlertTime = in.now
			state.IsRecovering = false
		}
		return
	}

	if state.LastAlertedRate != 0 {
		g.send(ctx, types.Alert{
			Title:     fmt.Sprintf("%s signature rate recovered", in.subjectLabel),
			Message:   fmt.Sprintf("%s %s signature rate recovered to %.2f%%", in.subjectLabel, in.subjectKey, in.rate),
			Severity:  types.SeverityInfo,
			Timestamp: in.now,
			Metadata: map[string]string{
				"subjectKey": in.subjectKey,
				"rate":       fmt.Sprintf("%.2f", in.rate),
			},
		})
		state.LastAlertedRate = 0
		state.IsRecovering = true
		state.LastRecoveryTime = in.now
	}
}
