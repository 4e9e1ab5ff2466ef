package aggregator

import (
	"context"
	"fmt"
	"sync/atomic"

	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/babylon-chain/liveness-monitor/internal/types"
	"github.com/babylon-chain/liveness-monitor/store"
)

// BLSCheckpointStatsFunc receives every persisted per-epoch stats
// record, for the caller to route to the alert governor.
type BLSCheckpointStatsFunc func(types.BLSCheckpointStats)

// BLSCheckpointAggregator persists per-epoch BLS checkpoint stats as
// delivered by the checkpoint pipeline; there is no online aggregation.
type BLSCheckpointAggregator struct {
	network  string
	repo     store.Repository
	logger   log.Logger
	onUpdate BLSCheckpointStatsFunc
	enabled  int32
}

// NewBLSCheckpointAggregator builds a BLSCheckpointAggregator.
func NewBLSCheckpointAggregator(network string, repo store.Repository, logger log.Logger, onUpdate BLSCheckpointStatsFunc) *BLSCheckpointAggregator {
	if logger == nil {
		logger = log.Root()
	}
	if onUpdate == nil {
		onUpdate = func(types.BLSCheckpointStats) {}
	}
	a := &BLSCheckpointAggregator{network: network, repo: repo, logger: logger, onUpdate: onUpdate}
	atomic.StoreInt32(&a.enabled, 1)
	return a
}

func (a *BLSCheckpointAggregator) Start(_ context.Context) error {
	atomic.StoreInt32(&a.enabled, 1)
	return nil
}

func (a *BLSCheckpointAggregator) Stop() error {
	atomic.StoreInt32(&a.enabled, 0)
	return nil
}

func (a *BLSCheckpointAggregator) IsEnabled() bool {
	return atomic.LoadInt32(&a.enabled) == 1
}

// ProcessObservation persists the delivered stats record unmodified.
func (a *BLSCheckpointAggregator) ProcessObservation(ctx context.Context, obs Observation) error {
	rec, ok := obs.(BLSCheckpointObservationRecord)
	if !ok {
		return fmt.Errorf("aggregator: bls checkpoint aggregator received unexpected observation type %T", obs)
	}
	if !a.IsEnabled() {
		return nil
	}

	if err := a.repo.UpsertBLSCheckpointStats(ctx, a.network, rec.Stats); err != nil {
		a.logger.Error("aggregator: persist bls checkpoint stats failed", "epoch", rec.Stats.Epoch, "err", err)
	}
	a.onUpdate(rec.Stats)
	return nil
}
