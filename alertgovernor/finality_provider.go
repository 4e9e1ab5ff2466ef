package alertgovernor

import (
	"context"
	"fmt"
	"time"

	"github.com/babylon-chain/liveness-monitor/internal/types"
)

// EvaluateFinalityProviderStats applies the rate-threshold hysteresis
// and recent-miss rules to a finality-provider vote update.
func (g *Governor) EvaluateFinalityProviderStats(ctx context.Context, stats types.FinalityProviderStats, now time.Time) {
	if !g.isTrackedFinalityProvider(stats.Key) {
		return
	}
	key := alertKey("fp", stats.Key)
	lock := g.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	state := g.stateFor(key)

	g.evaluateRateHysteresis(ctx, state, rateHysteresisInput{
		subjectKey:    stats.Key,
		subjectLabel:  "finality provider",
		totalInWindow: stats.TotalBlocks,
		rate:          stats.SignatureRate,
		threshold:     g.cfg.FinalityProviderThreshold,
		bucketed:      true,
		now:           now,
	})

	g.evaluateRecentMiss(ctx, state, stats, now)
}

// evaluateRecentMiss implements the recent-miss rule: a
// CRITICAL alert fires when at least RecentMissThreshold of the last
// RecentMissWindow observed heights were missed, subject to a cooldown
// since the last critical alert; it clears (RECOVERY) once no miss
// falls within that trailing window.
func (g *Governor) evaluateRecentMiss(ctx context.Context, state *types.AlertState, stats types.FinalityProviderStats, now time.Time) {
	recentMisses := countRecentMisses(stats.MissedBlockHeights, stats.EndHeight, g.cfg.RecentMissWindow)

	if recentMisses >= g.cfg.RecentMissThreshold {
		cooledDown := state.LastCriticalTime.IsZero() || now.Sub(state.LastCriticalTime) > g.cfg.RecentMissCooldown
		if cooledDown {
			g.send(ctx, types.Alert{
				Title:     "finality provider missing recent votes",
				Message:   fmt.Sprintf("finality provider %s missed %d of the last %d blocks", stats.Key, recentMisses, g.cfg.RecentMissWindow),
				Severity:  types.SeverityCritical,
				Timestamp: now,
				Metadata: map[string]string{
					"subjectKey":    stats.Key,
					"recentMisses":  fmt.Sprintf("%d", recentMisses),
				},
			})
			state.SentCritical = true
			state.LastCriticalTime = now
		}
		return
	}

	if recentMisses == 0 && state.SentCritical {
		g.send(ctx, types.Alert{
			Title:     "finality provider recovered recent votes",
			Message:   fmt.Sprintf("finality provider %s has no misses in the last %d blocks", stats.Key, g.cfg.RecentMissWindow),
			Severity:  types.SeverityInfo,
			Timestamp: now,
			Metadata:  map[string]string{"subjectKey": stats.Key},
		})
		state.SentCritical = false
	}
}

// countRecentMisses counts how many of the stored missed heights fall
// within the trailing window of `window` heights ending at endHeight.
// MissedBlockHeights only records misses, so the full set of observed
// heights in the window is derived from endHeight rather than tracked
// separately.
func countRecentMisses(missed []uint64, endHeight uint64, window int) int {
	if window <= 0 {
		return 0
	}
	lowerBound := uint64(0)
	if endHeight >= uint64(window-1) {
		lowerBound = endHeight - uint64(window-1)
	}
	count := 0
	for _, h := range missed {
		if h >= lowerBound && h <= endHeight {
			count++
		}
	}
	return count
}
