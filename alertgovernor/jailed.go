package alertgovernor

import (
	"context"
	"fmt"
	"time"

	"github.com/babylon-chain/liveness-monitor/internal/types"
)

// EvaluateJailedTransition always sends: a jailed flip is a CRITICAL
// alert, an unjail is INFO. There is no cooldown or tracking-list filter
// beyond the usual subject tracking list.
func (g *Governor) EvaluateJailedTransition(ctx context.Context, jt types.JailedTransition, now time.Time) {
	switch jt.SubjectType {
	case types.SubjectValidator:
		if !g.isTrackedValidator(jt.SubjectKey) {
			return
		}
	case types.SubjectFinalityProvider:
		if !g.isTrackedFinalityProvider(jt.SubjectKey) {
			return
		}
	}

	key := alertKey("jailed:"+string(jt.SubjectType), jt.SubjectKey)
	lock := g.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	severity := types.SeverityInfo
	title := fmt.Sprintf("%s unjailed", jt.SubjectType)
	if jt.IsJailed {
		severity = types.SeverityCritical
		title = fmt.Sprintf("%s jailed", jt.SubjectType)
	}

	g.send(ctx, types.Alert{
		Title:     title,
		Message:   fmt.Sprintf("%s %s jailed status changed to %v", jt.SubjectType, jt.SubjectKey, jt.IsJailed),
		Severity:  severity,
		Timestamp: now,
		Metadata: map[string]string{
			"subjectKey":  jt.SubjectKey,
			"subjectType": string(jt.SubjectType),
		},
	})
}
