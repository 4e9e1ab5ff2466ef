package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/babylon-chain/liveness-monitor/store"
)

func newTestFPAggregator(t *testing.T) *FinalityProviderAggregator {
	t.Helper()
	repo, err := store.NewMemoryRepository(0)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return NewFinalityProviderAggregator("testnet", repo, nil, nil)
}

func TestFinalityProviderAggregatorCreatesOnFirstObservation(t *testing.T) {
	a := newTestFPAggregator(t)
	obs := FinalityVoteObservation{SubjectKey: "fp1", Height: 500, Signed: true, Timestamp: time.Now()}
	if err := a.ProcessObservation(context.Background(), obs); err != nil {
		t.Fatalf("process: %v", err)
	}

	stats := a.cache["fp1"]
	if stats.StartHeight != 500 || stats.EndHeight != 500 {
		t.Fatalf("expected start=end=500, got start=%d end=%d", stats.StartHeight, stats.EndHeight)
	}
	if stats.TotalBlocks != 1 || stats.SignedBlocks != 1 {
		t.Fatalf("unexpected counters: total=%d signed=%d", stats.TotalBlocks, stats.SignedBlocks)
	}
}

func TestFinalityProviderAggregatorCapsMissedHeights(t *testing.T) {
	a := newTestFPAggregator(t)
	for h := uint64(0); h < 150; h++ {
		obs := FinalityVoteObservation{SubjectKey: "fp1", Height: h, Signed: false, Timestamp: time.Now()}
		if err := a.ProcessObservation(context.Background(), obs); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	stats := a.cache["fp1"]
	if len(stats.MissedBlockHeights) != 100 {
		t.Fatalf("expected cap of 100 missed heights, got %d", len(stats.MissedBlockHeights))
	}
	if stats.MissedBlockHeights[0] != 50 {
		t.Fatalf("expected oldest evicted, first retained height 50, got %d", stats.MissedBlockHeights[0])
	}
	if stats.MissedBlockHeights[len(stats.MissedBlockHeights)-1] != 149 {
		t.Fatalf("expected last retained height 149, got %d", stats.MissedBlockHeights[len(stats.MissedBlockHeights)-1])
	}
}

func TestFinalityProviderAggregatorStampsJailedAndActive(t *testing.T) {
	a := newTestFPAggregator(t)
	obs := FinalityVoteObservation{SubjectKey: "fp1", Height: 1, Signed: true, Jailed: true, IsActive: false, Timestamp: time.Now()}
	if err := a.ProcessObservation(context.Background(), obs); err != nil {
		t.Fatalf("process: %v", err)
	}
	stats := a.cache["fp1"]
	if !stats.Jailed || stats.IsActive {
		t.Fatalf("expected jailed=true isActive=false, got jailed=%v isActive=%v", stats.Jailed, stats.IsActive)
	}
}
