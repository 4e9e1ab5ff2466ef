package alertgovernor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/babylon-chain/liveness-monitor/internal/types"
)

// EvaluateBLSCheckpointStats applies the aggregate BLS participation
// rule: a WARNING fires whenever an epoch's power-weighted participation
// falls below threshold. There is no hysteresis beyond the natural
// per-epoch cadence.
func (g *Governor) EvaluateBLSCheckpointStats(ctx context.Context, stats types.BLSCheckpointStats, now time.Time) {
	rate, err := parsePercent(stats.ParticipationRateByPower)
	if err != nil {
		g.logger.Warn("alertgovernor: unparseable BLS participation rate", "epoch", stats.Epoch, "raw", stats.ParticipationRateByPower, "err", err)
		return
	}
	if rate < g.cfg.BLSThreshold {
		g.send(ctx, types.Alert{
			Title:     "BLS checkpoint participation low",
			Message:   fmt.Sprintf("epoch %d BLS checkpoint participation by power is %.2f%% (threshold %.2f%%)", stats.Epoch, rate, g.cfg.BLSThreshold),
			Severity:  types.SeverityWarning,
			Timestamp: now,
			Metadata: map[string]string{
				"epoch": fmt.Sprintf("%d", stats.Epoch),
				"rate":  fmt.Sprintf("%.2f", rate),
			},
		})
	}
}

// EvaluateBLSVote applies the per-validator BLS miss/recovery rule: a
// CRITICAL alert fires on every missed checkpoint signature, and a
// RECOVERY fires once, the next time that validator signs.
func (g *Governor) EvaluateBLSVote(ctx context.Context, subjectKey string, signed bool, epoch uint64, now time.Time) {
	if !g.isTrackedValidator(subjectKey) {
		return
	}
	key := alertKey("bls", subjectKey)
	lock := g.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	state := g.stateFor(key)

	if !signed {
		g.send(ctx, types.Alert{
			Title:     "validator missed BLS checkpoint signature",
			Message:   fmt.Sprintf("validator %s did not sign the BLS checkpoint for epoch %d", subjectKey, epoch),
			Severity:  types.SeverityCritical,
			Timestamp: now,
			Metadata: map[string]string{
				"subjectKey": subjectKey,
				"epoch":      fmt.Sprintf("%d", epoch),
			},
		})
		state.BLSMissEpisodeOpen = true
		state.LastMissedEpoch = epoch
		return
	}

	if state.BLSMissEpisodeOpen {
		g.send(ctx, types.Alert{
			Title:     "validator recovered BLS checkpoint signature",
			Message:   fmt.Sprintf("validator %s signed the BLS checkpoint for epoch %d", subjectKey, epoch),
			Severity:  types.SeverityInfo,
			Timestamp: now,
			Metadata: map[string]string{
				"subjectKey": subjectKey,
				"epoch":      fmt.Sprintf("%d", epoch),
			},
		})
		state.BLSMissEpisodeOpen = false
	}
}

// parsePercent parses the "NN.NN%" strings BLSCheckpointStats stores
// its rates as.
func parsePercent(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
}
