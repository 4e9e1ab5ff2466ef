package aggregator

import (
	"context"
	"fmt"
	"sync/atomic"

	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/babylon-chain/liveness-monitor/internal/types"
	"github.com/babylon-chain/liveness-monitor/store"
)

const defaultMissedHeightsCap = 100

// FinalityProviderStatsFunc receives every recomputed stats record, for
// the caller to route to the alert governor.
type FinalityProviderStatsFunc func(types.FinalityProviderStats)

// FinalityProviderAggregator is the per-provider vote accumulator.
// Single-writer discipline: only the pipeline goroutine calls
// ProcessObservation.
type FinalityProviderAggregator struct {
	network   string
	repo      store.Repository
	logger    log.Logger
	onUpdate  FinalityProviderStatsFunc
	missedCap int
	enabled   int32

	cache map[string]*types.FinalityProviderStats
}

// NewFinalityProviderAggregator builds a FinalityProviderAggregator.
func NewFinalityProviderAggregator(network string, repo store.Repository, logger log.Logger, onUpdate FinalityProviderStatsFunc) *FinalityProviderAggregator {
	if logger == nil {
		logger = log.Root()
	}
	if onUpdate == nil {
		onUpdate = func(types.FinalityProviderStats) {}
	}
	a := &FinalityProviderAggregator{
		network:   network,
		repo:      repo,
		logger:    logger,
		onUpdate:  onUpdate,
		missedCap: defaultMissedHeightsCap,
		cache:     make(map[string]*types.FinalityProviderStats),
	}
	atomic.StoreInt32(&a.enabled, 1)
	return a
}

func (a *FinalityProviderAggregator) Start(_ context.Context) error {
	atomic.StoreInt32(&a.enabled, 1)
	return nil
}

func (a *FinalityProviderAggregator) Stop() error {
	atomic.StoreInt32(&a.enabled, 0)
	return nil
}

func (a *FinalityProviderAggregator) IsEnabled() bool {
	return atomic.LoadInt32(&a.enabled) == 1
}

// ProcessObservation updates the provider's counters:
// create on first observation, otherwise accumulate and cap the missed-
// heights history, then stamp the current jailed/active flags.
func (a *FinalityProviderAggregator) ProcessObservation(ctx context.Context, obs Observation) error {
	fv, ok := obs.(FinalityVoteObservation)
	if !ok {
		return fmt.Errorf("aggregator: finality provider aggregator received unexpected observation type %T", obs)
	}
	if !a.IsEnabled() {
		return nil
	}

	stats, exists := a.cache[fv.SubjectKey]
	if !exists {
		stats = &types.FinalityProviderStats{
			Key:         fv.SubjectKey,
			StartHeight: fv.Height,
			EndHeight:   fv.Height,
			TotalBlocks: 1,
		}
		if fv.Signed {
			stats.SignedBlocks = 1
		} else {
			stats.MissedBlocks = 1
			stats.MissedBlockHeights = []uint64{fv.Height}
		}
		a.cache[fv.SubjectKey] = stats
	} else {
		stats.TotalBlocks++
		if fv.Signed {
			stats.SignedBlocks++
		} else {
			stats.MissedBlocks++
			stats.MissedBlockHeights = appendCappedHeight(stats.MissedBlockHeights, fv.Height, a.missedCap)
		}
		if fv.Height > stats.EndHeight {
			stats.EndHeight = fv.Height
		}
	}

	stats.RecomputeRate()
	stats.Jailed = fv.Jailed
	stats.IsActive = fv.IsActive
	stats.LastUpdated = fv.Timestamp

	if err := a.repo.UpsertFinalityProviderStats(ctx, a.network, *stats); err != nil {
		a.logger.Error("aggregator: persist finality provider stats failed", "key", fv.SubjectKey, "err", err)
	}
	a.onUpdate(*stats)
	return nil
}

// appendCappedHeight appends h, evicting the oldest entry once the
// sequence exceeds limit entries.
func appendCappedHeight(heights []uint64, h uint64, limit int) []uint64 {
	heights = append(heights, h)
	if len(heights) > limit {
		heights = heights[len(heights)-limit:]
	}
	return heights
}
