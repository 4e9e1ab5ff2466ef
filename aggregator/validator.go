package aggregator

import (
	"context"
	"fmt"
	"sync/atomic"

	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/babylon-chain/liveness-monitor/internal/types"
	"github.com/babylon-chain/liveness-monitor/store"
)

const (
	defaultRecentLimit  = 100
	defaultWindow       = 10000
)

// ValidatorStatsFunc receives every recomputed stats record, for the
// caller to route to the alert governor.
type ValidatorStatsFunc func(types.ValidatorSignatureStats)

// ValidatorAggregator is the per-validator block-signature accumulator.
// It follows a single-writer discipline: ProcessObservation
// is only ever called from the block pipeline's own goroutine, so no
// lock guards the in-memory cache.
type ValidatorAggregator struct {
	network     string
	repo        store.Repository
	logger      log.Logger
	onUpdate    ValidatorStatsFunc
	recentLimit int
	window      uint64
	enabled     int32

	cache map[string]*types.ValidatorSignatureStats
}

// NewValidatorAggregator builds a ValidatorAggregator. onUpdate may be
// nil if the caller doesn't need per-update notification.
func NewValidatorAggregator(network string, repo store.Repository, logger log.Logger, onUpdate ValidatorStatsFunc) *ValidatorAggregator {
	if logger == nil {
		logger = log.Root()
	}
	if onUpdate == nil {
		onUpdate = func(types.ValidatorSignatureStats) {}
	}
	a := &ValidatorAggregator{
		network:     network,
		repo:        repo,
		logger:      logger,
		onUpdate:    onUpdate,
		recentLimit: defaultRecentLimit,
		window:      defaultWindow,
		cache:       make(map[string]*types.ValidatorSignatureStats),
	}
	atomic.StoreInt32(&a.enabled, 1)
	return a
}

// Start marks the aggregator enabled. It holds no resources of its own.
func (a *ValidatorAggregator) Start(_ context.Context) error {
	atomic.StoreInt32(&a.enabled, 1)
	return nil
}

// Stop marks the aggregator disabled; subsequent observations are dropped.
func (a *ValidatorAggregator) Stop() error {
	atomic.StoreInt32(&a.enabled, 0)
	return nil
}

// IsEnabled reports whether the aggregator currently accepts observations.
func (a *ValidatorAggregator) IsEnabled() bool {
	return atomic.LoadInt32(&a.enabled) == 1
}

// ProcessObservation updates the subject's sliding-window stats and
// persists the result.
func (a *ValidatorAggregator) ProcessObservation(ctx context.Context, obs Observation) error {
	bo, ok := obs.(BlockSignatureObservation)
	if !ok {
		return fmt.Errorf("aggregator: validator aggregator received unexpected observation type %T", obs)
	}
	if !a.IsEnabled() {
		return nil
	}

	stats, ok := a.cache[bo.SubjectKey]
	if !ok {
		stats = &types.ValidatorSignatureStats{SubjectKey: bo.SubjectKey, Network: a.network}
		a.cache[bo.SubjectKey] = stats
	}

	stats.RecentBlocks = prependRecentBlock(stats.RecentBlocks, types.RecentBlock{
		Height:    bo.Height,
		Signed:    bo.Signed,
		Round:     bo.Round,
		Timestamp: bo.Timestamp,
	}, a.recentLimit)

	if bo.Signed {
		stats.ConsecutiveSigned++
		stats.ConsecutiveMissed = 0
	} else {
		stats.ConsecutiveMissed++
		stats.ConsecutiveSigned = 0
	}

	// totalBlocksInWindow saturates at W; once saturated, totalSignedBlocks
	// is frozen rather than evicting the oldest observation.
	if stats.TotalBlocksInWindow < a.window {
		stats.TotalBlocksInWindow++
		if bo.Signed && stats.TotalBlocksInWindow < a.window {
			stats.TotalSignedBlocks++
		}
	}
	stats.RecomputeRate()
	stats.LastUpdated = bo.Timestamp

	if err := a.repo.UpsertValidatorStats(ctx, a.network, *stats); err != nil {
		a.logger.Error("aggregator: persist validator stats failed", "key", bo.SubjectKey, "err", err)
	}
	a.onUpdate(*stats)
	return nil
}

// prependRecentBlock inserts rb at the front of a newest-first sequence,
// truncating to limit entries.
func prependRecentBlock(blocks []types.RecentBlock, rb types.RecentBlock, limit int) []types.RecentBlock {
	blocks = append([]types.RecentBlock{rb}, blocks...)
	if len(blocks) > limit {
		blocks = blocks[:limit]
	}
	return blocks
}
