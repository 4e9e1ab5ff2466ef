package aggregator

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/babylon-chain/liveness-monitor/store"
)

func feedValidator(t *testing.T, a *ValidatorAggregator, key string, startHeight uint64, count int, signed bool) {
	t.Helper()
	for i := 0; i < count; i++ {
		obs := BlockSignatureObservation{
			SubjectKey: key,
			Height:     startHeight + uint64(i),
			Signed:     signed,
			Timestamp:  time.Now(),
		}
		if err := a.ProcessObservation(context.Background(), obs); err != nil {
			t.Fatalf("process observation: %v", err)
		}
	}
}

func newTestValidatorAggregator(t *testing.T) *ValidatorAggregator {
	t.Helper()
	repo, err := store.NewMemoryRepository(0)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return NewValidatorAggregator("testnet", repo, nil, nil)
}

func TestValidatorAggregatorS1BasicSigning(t *testing.T) {
	a := newTestValidatorAggregator(t)
	feedValidator(t, a, "V1", 100, 100, true)

	stats := a.cache["V1"]
	if stats.TotalBlocksInWindow != 100 {
		t.Fatalf("expected window 100, got %d", stats.TotalBlocksInWindow)
	}
	if stats.TotalSignedBlocks != 100 {
		t.Fatalf("expected signed 100, got %d", stats.TotalSignedBlocks)
	}
	if stats.SignatureRate != 100 {
		t.Fatalf("expected rate 100, got %v", stats.SignatureRate)
	}
	if stats.ConsecutiveSigned != 100 || stats.ConsecutiveMissed != 0 {
		t.Fatalf("unexpected consecutive counters: signed=%d missed=%d", stats.ConsecutiveSigned, stats.ConsecutiveMissed)
	}
	if len(stats.RecentBlocks) != 100 {
		t.Fatalf("expected 100 recent blocks, got %d", len(stats.RecentBlocks))
	}
	if stats.RecentBlocks[0].Height != 199 {
		t.Fatalf("expected newest-first ordering, got head height %d", stats.RecentBlocks[0].Height)
	}
}

func TestValidatorAggregatorS2DroppingToLow(t *testing.T) {
	a := newTestValidatorAggregator(t)
	feedValidator(t, a, "V2", 0, 200, true)
	feedValidator(t, a, "V2", 200, 50, false)

	stats := a.cache["V2"]
	if stats.TotalBlocksInWindow != 250 {
		t.Fatalf("expected window 250, got %d", stats.TotalBlocksInWindow)
	}
	if stats.TotalSignedBlocks != 200 {
		t.Fatalf("expected signed 200, got %d", stats.TotalSignedBlocks)
	}
	if stats.SignatureRate != 80 {
		t.Fatalf("expected rate 80, got %v", stats.SignatureRate)
	}
	if stats.ConsecutiveMissed != 50 {
		t.Fatalf("expected consecutive missed 50, got %d", stats.ConsecutiveMissed)
	}
}

func TestValidatorAggregatorS3Recovery(t *testing.T) {
	a := newTestValidatorAggregator(t)
	feedValidator(t, a, "V2", 0, 200, true)
	feedValidator(t, a, "V2", 200, 50, false)
	feedValidator(t, a, "V2", 250, 50, true)

	stats := a.cache["V2"]
	if !approxEqual(stats.SignatureRate, 83.3, 0.1) {
		t.Fatalf("expected rate ~83.3, got %v", stats.SignatureRate)
	}
	if stats.ConsecutiveSigned != 50 || stats.ConsecutiveMissed != 0 {
		t.Fatalf("unexpected consecutive counters after recovery start: signed=%d missed=%d", stats.ConsecutiveSigned, stats.ConsecutiveMissed)
	}

	feedValidator(t, a, "V2", 300, 50, true)
	stats = a.cache["V2"]
	if !approxEqual(stats.SignatureRate, 86.7, 0.1) {
		t.Fatalf("expected rate ~86.7, got %v", stats.SignatureRate)
	}

	feedValidator(t, a, "V2", 350, 150, true)
	stats = a.cache["V2"]
	if !approxEqual(stats.SignatureRate, 91.3, 0.1) {
		t.Fatalf("expected rate ~91.3, got %v", stats.SignatureRate)
	}
}

func TestValidatorAggregatorRejectsWrongObservationType(t *testing.T) {
	a := newTestValidatorAggregator(t)
	if err := a.ProcessObservation(context.Background(), FinalityVoteObservation{}); err == nil {
		t.Fatalf("expected error for mismatched observation type")
	}
}

func TestValidatorAggregatorStopDropsObservations(t *testing.T) {
	a := newTestValidatorAggregator(t)
	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	feedValidator(t, a, "V3", 0, 10, true)
	if _, ok := a.cache["V3"]; ok {
		t.Fatalf("expected no observations processed while stopped")
	}
}

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
