// Package blockpipeline implements the block pipeline (C4): an ordered,
// gap-tolerant consumer that turns raw block events into per-validator
// and per-finality-provider observations, with finality-lag eligibility
// and an initial gap catch-up sync.
package blockpipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/babylon-chain/liveness-monitor/aggregator"
	"github.com/babylon-chain/liveness-monitor/directory"
	"github.com/babylon-chain/liveness-monitor/gateway"
	"github.com/babylon-chain/liveness-monitor/internal/chainjson"
	"github.com/babylon-chain/liveness-monitor/store"
)

const (
	defaultFinalityLag        = 3
	defaultMaxSync            = 100
	defaultEpochRefreshEvery  = 50
	defaultProcessedCacheSize = 4096
	defaultFPVoteCacheSize    = 1024
)

// ErrReentrant names the condition of a processing pass already
// running. ProcessEligible does not return it: a re-entrant call
// returns nil immediately, so callers cannot tell it apart from a
// completed pass.
var ErrReentrant = errors.New("blockpipeline: processing already in progress")

// Config holds the pipeline's tunable thresholds.
type Config struct {
	FinalityLag       uint64 // F, blocks the pipeline waits behind the tip
	MaxSync           uint64 // cap on gap catch-up blocks per invocation
	EpochRefreshEvery uint64 // K, blocks between epoch watermark refreshes
}

// DefaultConfig returns the package defaults.
func DefaultConfig() Config {
	return Config{
		FinalityLag:       defaultFinalityLag,
		MaxSync:           defaultMaxSync,
		EpochRefreshEvery: defaultEpochRefreshEvery,
	}
}

// Pipeline is the C4 block pipeline for a single network.
type Pipeline struct {
	network      string
	rest         *gateway.RESTClient
	dir          *directory.Directory
	repo         store.Repository
	validatorAgg *aggregator.ValidatorAggregator
	fpAgg        *aggregator.FinalityProviderAggregator
	logger       log.Logger
	cfg          Config

	onEpochRefresh func(epoch uint64)

	mu                      sync.Mutex
	watermark               uint64
	maxSeen                 uint64
	pending                 *pendingQueue
	blocksSinceEpochRefresh uint64

	processedCache *lru.Cache[uint64, struct{}]
	fpVoteCache    *lru.Cache[uint64, map[string]struct{}]

	processing int32
}

// New builds a Pipeline. onEpochRefresh may be nil; it is invoked every
// EpochRefreshEvery processed blocks so the checkpoint pipeline can keep
// its current-epoch watermark fresh.
func New(
	network string,
	rest *gateway.RESTClient,
	dir *directory.Directory,
	repo store.Repository,
	validatorAgg *aggregator.ValidatorAggregator,
	fpAgg *aggregator.FinalityProviderAggregator,
	logger log.Logger,
	cfg Config,
	onEpochRefresh func(epoch uint64),
) (*Pipeline, error) {
	if logger == nil {
		logger = log.Root()
	}
	if cfg.FinalityLag == 0 {
		cfg.FinalityLag = defaultFinalityLag
	}
	if cfg.MaxSync == 0 {
		cfg.MaxSync = defaultMaxSync
	}
	if cfg.EpochRefreshEvery == 0 {
		cfg.EpochRefreshEvery = defaultEpochRefreshEvery
	}

	processedCache, err := lru.New[uint64, struct{}](defaultProcessedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("blockpipeline: new processed cache: %w", err)
	}
	fpVoteCache, err := lru.New[uint64, map[string]struct{}](defaultFPVoteCacheSize)
	if err != nil {
		return nil, fmt.Errorf("blockpipeline: new fp vote cache: %w", err)
	}

	return &Pipeline{
		network:        network,
		rest:           rest,
		dir:            dir,
		repo:           repo,
		validatorAgg:   validatorAgg,
		fpAgg:          fpAgg,
		logger:         logger,
		cfg:            cfg,
		onEpochRefresh: onEpochRefresh,
		pending:        newPendingQueue(),
		processedCache: processedCache,
		fpVoteCache:    fpVoteCache,
	}, nil
}

// Watermark returns the last-processed height.
func (p *Pipeline) Watermark() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// MaxSeen returns the highest height observed so far, processed or not.
func (p *Pipeline) MaxSeen() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxSeen
}

// OnBlockEvent enqueues a newly observed height for processing,
// dropping it if it's at or behind the watermark or already processed.
func (p *Pipeline) OnBlockEvent(block chainjson.Object) {
	h, ok := blockHeight(block)
	if !ok {
		p.logger.Debug("blockpipeline: event missing height, dropping")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if h <= p.watermark {
		return
	}
	if _, ok := p.processedCache.Get(h); ok {
		return
	}
	if h > p.maxSeen {
		p.maxSeen = h
	}
	p.pending.push(h)
}

// ProcessEligible drains every pending height that has cleared the
// finality lag, in ascending order. A re-entrant call while a pass is
// already running returns immediately without error.
func (p *Pipeline) ProcessEligible(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.processing, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&p.processing, 0)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.mu.Lock()
		h, ok := p.pending.peek()
		maxSeen := p.maxSeen
		p.mu.Unlock()
		if !ok || h+p.cfg.FinalityLag > maxSeen {
			return nil
		}

		p.mu.Lock()
		h, _ = p.pending.pop()
		p.mu.Unlock()

		if err := p.processHeight(ctx, h, nil); err != nil {
			p.logger.Error("blockpipeline: process height failed", "height", h, "err", err)
		}
		p.markProcessed(ctx, h)
	}
}

// markProcessed advances the watermark, records h as processed, and
// triggers the periodic epoch-watermark refresh when due.
func (p *Pipeline) markProcessed(ctx context.Context, h uint64) {
	p.mu.Lock()
	p.watermark = h
	p.processedCache.Add(h, struct{}{})
	p.blocksSinceEpochRefresh++
	needRefresh := p.blocksSinceEpochRefresh >= p.cfg.EpochRefreshEvery
	if needRefresh {
		p.blocksSinceEpochRefresh = 0
	}
	p.mu.Unlock()

	if err := p.repo.RecordLatestHeight(ctx, p.network, h); err != nil {
		p.logger.Error("blockpipeline: record latest height failed", "height", h, "err", err)
	}
	if needRefresh {
		p.refreshEpochWatermark(ctx)
	}
}

func (p *Pipeline) refreshEpochWatermark(ctx context.Context) {
	obj, err := p.rest.CurrentEpoch(ctx)
	if err != nil {
		p.logger.Warn("blockpipeline: epoch watermark refresh failed", "err", err)
		return
	}
	epoch, ok := chainjson.FlexUint(obj.Field("current_epoch", "currentEpoch"))
	if !ok || p.onEpochRefresh == nil {
		return
	}
	p.onEpochRefresh(epoch)
}

// SyncGap runs the initial gap catch-up:
// syncStart = max(lastStoredHeight+1, currentHeight-F-MAX_SYNC),
// syncEnd = currentHeight-F, capped at MAX_SYNC blocks.
func (p *Pipeline) SyncGap(ctx context.Context) error {
	currentHeight, err := p.rest.CurrentHeight(ctx)
	if err != nil {
		return fmt.Errorf("blockpipeline: sync gap current height: %w", err)
	}
	lastStored, _, err := p.repo.FindLatestHeightByNetwork(ctx, p.network)
	if err != nil {
		return fmt.Errorf("blockpipeline: sync gap last stored height: %w", err)
	}

	syncEnd := saturatingSub(currentHeight, p.cfg.FinalityLag)
	lowerBound := saturatingSub(syncEnd, p.cfg.MaxSync)
	syncStart := lastStored + 1
	if lowerBound > syncStart {
		syncStart = lowerBound
	}
	if syncStart > syncEnd {
		p.mu.Lock()
		if syncEnd > p.maxSeen {
			p.maxSeen = syncEnd
		}
		p.mu.Unlock()
		return nil
	}

	for h := syncStart; h <= syncEnd && h-syncStart < p.cfg.MaxSync; h++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := p.processHeight(ctx, h, nil); err != nil {
			p.logger.Error("blockpipeline: sync height failed", "height", h, "err", err)
			continue
		}
		p.markProcessed(ctx, h)
	}

	p.mu.Lock()
	if syncEnd > p.maxSeen {
		p.maxSeen = syncEnd
	}
	p.mu.Unlock()
	return nil
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
