package alertgovernor

import (
	"context"
	"testing"
	"time"

	"github.com/babylon-chain/liveness-monitor/internal/types"
)

type captureSink struct {
	alerts []types.Alert
}

func (c *captureSink) SendAlert(ctx context.Context, alert types.Alert) error {
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *captureSink) titles() []string {
	out := make([]string, len(c.alerts))
	for i, a := range c.alerts {
		out[i] = a.Title
	}
	return out
}

func newTestGovernor(sink *captureSink) *Governor {
	return New("testnet", sink, nil, nil, nil, DefaultConfig())
}

func TestValidatorRateHysteresisFirstAlertThenRequiresFurtherDrop(t *testing.T) {
	sink := &captureSink{}
	g := newTestGovernor(sink)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	g.EvaluateValidatorStats(ctx, types.ValidatorSignatureStats{
		SubjectKey: "val1", TotalBlocksInWindow: 100, SignatureRate: 85,
	}, base)
	if len(sink.alerts) != 1 {
		t.Fatalf("expected first below-threshold observation to alert, got %d", len(sink.alerts))
	}

	// Small further drop that doesn't clear DROP_STEP, and too soon: no alert.
	g.EvaluateValidatorStats(ctx, types.ValidatorSignatureStats{
		SubjectKey: "val1", TotalBlocksInWindow: 100, SignatureRate: 80,
	}, base.Add(time.Minute))
	if len(sink.alerts) != 1 {
		t.Fatalf("expected no new alert for insufficient drop, got %d", len(sink.alerts))
	}

	// Drop clears the 10-point step but MIN_ALERT_INTERVAL hasn't elapsed.
	g.EvaluateValidatorStats(ctx, types.ValidatorSignatureStats{
		SubjectKey: "val1", TotalBlocksInWindow: 100, SignatureRate: 70,
	}, base.Add(time.Minute*2))
	if len(sink.alerts) != 1 {
		t.Fatalf("expected no new alert before interval elapses, got %d", len(sink.alerts))
	}

	// Same drop, now past MIN_ALERT_INTERVAL: alerts again.
	g.EvaluateValidatorStats(ctx, types.ValidatorSignatureStats{
		SubjectKey: "val1", TotalBlocksInWindow: 100, SignatureRate: 70,
	}, base.Add(7*time.Hour))
	if len(sink.alerts) != 2 {
		t.Fatalf("expected second alert after interval and sufficient drop, got %d", len(sink.alerts))
	}

	// Recovery back above threshold.
	g.EvaluateValidatorStats(ctx, types.ValidatorSignatureStats{
		SubjectKey: "val1", TotalBlocksInWindow: 100, SignatureRate: 95,
	}, base.Add(8*time.Hour))
	if len(sink.alerts) != 3 || sink.alerts[2].Severity != types.SeverityInfo {
		t.Fatalf("expected recovery alert, got %v", sink.titles())
	}
}

func TestValidatorRateHysteresisSkipsBelowWindowFloor(t *testing.T) {
	sink := &captureSink{}
	g := newTestGovernor(sink)
	g.EvaluateValidatorStats(context.Background(), types.ValidatorSignatureStats{
		SubjectKey: "val1", TotalBlocksInWindow: 50, SignatureRate: 10,
	}, time.Now())
	if len(sink.alerts) != 0 {
		t.Fatalf("expected no alert below the 100-block window floor, got %d", len(sink.alerts))
	}
}

func TestValidatorConsecutiveMissFiresOnceUntilCleared(t *testing.T) {
	sink := &captureSink{}
	g := newTestGovernor(sink)
	ctx := context.Background()
	now := time.Now()

	for _, missed := range []uint64{4, 5, 6} {
		g.EvaluateValidatorStats(ctx, types.ValidatorSignatureStats{
			SubjectKey: "val2", TotalBlocksInWindow: 0, ConsecutiveMissed: missed,
		}, now)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("expected exactly one consecutive-miss alert across an unbroken run, got %d", len(sink.alerts))
	}

	g.EvaluateValidatorStats(ctx, types.ValidatorSignatureStats{
		SubjectKey: "val2", TotalBlocksInWindow: 0, ConsecutiveMissed: 0,
	}, now)
	g.EvaluateValidatorStats(ctx, types.ValidatorSignatureStats{
		SubjectKey: "val2", TotalBlocksInWindow: 0, ConsecutiveMissed: 5,
	}, now)
	if len(sink.alerts) != 2 {
		t.Fatalf("expected a fresh alert after the run cleared and crossed again, got %d", len(sink.alerts))
	}
}

func TestFinalityProviderRecentMissCriticalAndRecovery(t *testing.T) {
	sink := &captureSink{}
	g := newTestGovernor(sink)
	ctx := context.Background()
	now := time.Now()

	g.EvaluateFinalityProviderStats(ctx, types.FinalityProviderStats{
		Key: "fp1", TotalBlocks: 0, EndHeight: 104,
		MissedBlockHeights: []uint64{100, 101, 102},
	}, now)
	if len(sink.alerts) != 1 || sink.alerts[0].Severity != types.SeverityCritical {
		t.Fatalf("expected one critical recent-miss alert, got %v", sink.titles())
	}

	// Within cooldown: no repeat even though still >= threshold.
	g.EvaluateFinalityProviderStats(ctx, types.FinalityProviderStats{
		Key: "fp1", TotalBlocks: 0, EndHeight: 104,
		MissedBlockHeights: []uint64{100, 101, 102},
	}, now.Add(10*time.Minute))
	if len(sink.alerts) != 1 {
		t.Fatalf("expected cooldown to suppress repeat critical, got %d", len(sink.alerts))
	}

	// Recovery: no misses in the trailing window.
	g.EvaluateFinalityProviderStats(ctx, types.FinalityProviderStats{
		Key: "fp1", TotalBlocks: 0, EndHeight: 110,
	}, now.Add(2*time.Hour))
	if len(sink.alerts) != 2 || sink.alerts[1].Severity != types.SeverityInfo {
		t.Fatalf("expected recovery alert, got %v", sink.titles())
	}
}

func TestBLSCheckpointParticipationWarningBelowThreshold(t *testing.T) {
	sink := &captureSink{}
	g := newTestGovernor(sink)
	g.EvaluateBLSCheckpointStats(context.Background(), types.BLSCheckpointStats{
		Epoch: 5, ParticipationRateByPower: "37.50%",
	}, time.Now())
	if len(sink.alerts) != 1 || sink.alerts[0].Severity != types.SeverityWarning {
		t.Fatalf("expected a warning below threshold, got %v", sink.titles())
	}

	sink2 := &captureSink{}
	g2 := newTestGovernor(sink2)
	g2.EvaluateBLSCheckpointStats(context.Background(), types.BLSCheckpointStats{
		Epoch: 6, ParticipationRateByPower: "95.00%",
	}, time.Now())
	if len(sink2.alerts) != 0 {
		t.Fatalf("expected no alert at or above threshold, got %d", len(sink2.alerts))
	}
}

func TestBLSVoteMissThenRecoveryOnce(t *testing.T) {
	sink := &captureSink{}
	g := newTestGovernor(sink)
	ctx := context.Background()
	now := time.Now()

	g.EvaluateBLSVote(ctx, "val1", false, 5, now)
	if len(sink.alerts) != 1 || sink.alerts[0].Severity != types.SeverityCritical {
		t.Fatalf("expected a critical miss alert, got %v", sink.titles())
	}

	g.EvaluateBLSVote(ctx, "val1", true, 6, now.Add(time.Hour))
	if len(sink.alerts) != 2 || sink.alerts[1].Severity != types.SeverityInfo {
		t.Fatalf("expected a recovery alert, got %v", sink.titles())
	}

	// A further signed epoch with no open episode sends nothing more.
	g.EvaluateBLSVote(ctx, "val1", true, 7, now.Add(2*time.Hour))
	if len(sink.alerts) != 2 {
		t.Fatalf("expected no further alert once the episode is closed, got %d", len(sink.alerts))
	}
}

func TestJailedTransitionAlwaysSendsRegardlessOfCooldown(t *testing.T) {
	sink := &captureSink{}
	g := newTestGovernor(sink)
	ctx := context.Background()
	now := time.Now()

	g.EvaluateJailedTransition(ctx, types.JailedTransition{
		SubjectKey: "val1", SubjectType: types.SubjectValidator, WasJailed: false, IsJailed: true,
	}, now)
	g.EvaluateJailedTransition(ctx, types.JailedTransition{
		SubjectKey: "val1", SubjectType: types.SubjectValidator, WasJailed: true, IsJailed: false,
	}, now.Add(time.Second))

	if len(sink.alerts) != 2 {
		t.Fatalf("expected both transitions to send unconditionally, got %d", len(sink.alerts))
	}
	if sink.alerts[0].Severity != types.SeverityCritical || sink.alerts[1].Severity != types.SeverityInfo {
		t.Fatalf("unexpected severities: %v", sink.alerts)
	}
}

func TestTrackingListFiltersUntrackedSubjects(t *testing.T) {
	sink := &captureSink{}
	g := New("testnet", sink, nil, []string{"val1"}, nil, DefaultConfig())

	g.EvaluateValidatorStats(context.Background(), types.ValidatorSignatureStats{
		SubjectKey: "val2", TotalBlocksInWindow: 100, SignatureRate: 10,
	}, time.Now())
	if len(sink.alerts) != 0 {
		t.Fatalf("expected untracked subject to be filtered, got %d", len(sink.alerts))
	}

	g.EvaluateValidatorStats(context.Background(), types.ValidatorSignatureStats{
		SubjectKey: "val1", TotalBlocksInWindow: 100, SignatureRate: 10,
	}, time.Now())
	if len(sink.alerts) != 1 {
		t.Fatalf("expected tracked subject to alert, got %d", len(sink.alerts))
	}
}
