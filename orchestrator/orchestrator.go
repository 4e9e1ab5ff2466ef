// Package orchestrator implements the per-network supervisor (C8): it
// wires the chain gateway, directory, event router, block and
// checkpoint pipelines, aggregators and alert governor together, and
// owns the goroutines that drive them.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/babylon-chain/liveness-monitor/aggregator"
	"github.com/babylon-chain/liveness-monitor/alertgovernor"
	"github.com/babylon-chain/liveness-monitor/blockpipeline"
	"github.com/babylon-chain/liveness-monitor/checkpointpipeline"
	"github.com/babylon-chain/liveness-monitor/directory"
	"github.com/babylon-chain/liveness-monitor/gateway"
	"github.com/babylon-chain/liveness-monitor/internal/chainjson"
	"github.com/babylon-chain/liveness-monitor/internal/config"
	"github.com/babylon-chain/liveness-monitor/internal/types"
	"github.com/babylon-chain/liveness-monitor/notifier"
	"github.com/babylon-chain/liveness-monitor/router"
	"github.com/babylon-chain/liveness-monitor/store"
)

const (
	restTimeout         = 10 * time.Second
	shutdownGracePeriod = 5 * time.Second
	epochChannelBuffer  = 16
	valconsPrefix       = "bbnvalcons"
)

var defaultFilters = []gateway.Filter{
	{ID: "newBlock", Query: "tm.event='NewBlock'"},
	{ID: "checkpoint_for_bls", Query: "tm.event='Tx' AND babylon.checkpointing.v1.EventCheckpointSealed.checkpoint CONTAINS 'epoch_num'"},
}

// Orchestrator is the C8 supervisor for a single network.
type Orchestrator struct {
	network string
	logger  log.Logger

	rest   *gateway.RESTClient
	stream *gateway.EventStream
	rtr    *router.Router

	repo store.Repository

	dir            *directory.Directory
	validatorAgg   *aggregator.ValidatorAggregator
	fpAgg          *aggregator.FinalityProviderAggregator
	blsAgg         *aggregator.BLSCheckpointAggregator
	blockPipeline  *blockpipeline.Pipeline
	checkpointPipe *checkpointpipeline.Pipeline
	governor       *alertgovernor.Governor

	monitoringInterval time.Duration

	epochCh chan uint64
}

// New builds every C1-C7 component for one network and wires the
// callbacks between them (jailed transitions and aggregator updates
// feed the alert governor; epoch watermark refreshes feed the
// checkpoint pipeline).
func New(netCfg config.NetworkConfig, globalCfg config.Config, repo store.Repository, sink notifier.Sink, logger log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.Root()
	}
	logger = logger.New("network", netCfg.Name)

	rest, err := gateway.NewRESTClient(netCfg.RESTURLs, restTimeout)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: new rest client: %w", err)
	}
	stream, err := gateway.NewEventStream(netCfg.WSURLs, logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: new event stream: %w", err)
	}

	o := &Orchestrator{
		network:            netCfg.Name,
		logger:             logger,
		rest:               rest,
		stream:             stream,
		rtr:                router.New(logger),
		repo:               repo,
		monitoringInterval: globalCfg.MonitoringInterval,
		epochCh:            make(chan uint64, epochChannelBuffer),
	}

	o.governor = alertgovernor.New(netCfg.Name, sink, logger, netCfg.TrackedValidators, netCfg.TrackedFinalityProviders, alertgovernor.Config{
		ValidatorThreshold:        globalCfg.ValidatorSignatureThreshold,
		FinalityProviderThreshold: globalCfg.FinalityProviderSignatureThreshold,
		BLSThreshold:              globalCfg.BLSSignatureThreshold,
		ValidatorDropStep:         globalCfg.SignatureRateMinDrop,
		MinAlertInterval:          globalCfg.AlertMinInterval,
		ConsecutiveMissThreshold:  alertgovernor.DefaultConfig().ConsecutiveMissThreshold,
		RecentMissWindow:          alertgovernor.DefaultConfig().RecentMissWindow,
		RecentMissThreshold:       alertgovernor.DefaultConfig().RecentMissThreshold,
		RecentMissCooldown:        alertgovernor.DefaultConfig().RecentMissCooldown,
	})

	o.dir = directory.New(netCfg.Name, valconsPrefix, rest, repo, logger, func(jt types.JailedTransition) {
		o.governor.EvaluateJailedTransition(context.Background(), jt, time.Now())
	})

	if globalCfg.ValidatorSignatureMonitoringEnabled {
		o.validatorAgg = aggregator.NewValidatorAggregator(netCfg.Name, repo, logger, func(stats types.ValidatorSignatureStats) {
			o.governor.EvaluateValidatorStats(context.Background(), stats, time.Now())
		})
	} else {
		o.validatorAgg = aggregator.NewValidatorAggregator(netCfg.Name, repo, logger, func(types.ValidatorSignatureStats) {})
		o.validatorAgg.Stop()
	}

	if globalCfg.FinalityProviderMonitoringEnabled {
		o.fpAgg = aggregator.NewFinalityProviderAggregator(netCfg.Name, repo, logger, func(stats types.FinalityProviderStats) {
			o.governor.EvaluateFinalityProviderStats(context.Background(), stats, time.Now())
		})
	} else {
		o.fpAgg = aggregator.NewFinalityProviderAggregator(netCfg.Name, repo, logger, func(types.FinalityProviderStats) {})
		o.fpAgg.Stop()
	}

	if globalCfg.BLSSignatureMonitoringEnabled {
		o.blsAgg = aggregator.NewBLSCheckpointAggregator(netCfg.Name, repo, logger, func(stats types.BLSCheckpointStats) {
			o.governor.EvaluateBLSCheckpointStats(context.Background(), stats, time.Now())
		})
	} else {
		o.blsAgg = aggregator.NewBLSCheckpointAggregator(netCfg.Name, repo, logger, func(types.BLSCheckpointStats) {})
		o.blsAgg.Stop()
	}

	blockCfg := blockpipeline.DefaultConfig()
	blockCfg.FinalityLag = globalCfg.FinalizedBlocksWait
	o.blockPipeline, err = blockpipeline.New(netCfg.Name, rest, o.dir, repo, o.validatorAgg, o.fpAgg, logger, blockCfg, func(epoch uint64) {
		o.enqueueEpoch(epoch)
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: new block pipeline: %w", err)
	}

	o.checkpointPipe = checkpointpipeline.New(netCfg.Name, rest, o.dir, o.blsAgg, logger)

	return o, nil
}

func (o *Orchestrator) enqueueEpoch(epoch uint64) {
	select {
	case o.epochCh <- epoch:
	default:
		o.logger.Warn("orchestrator: epoch channel full, dropping epoch watermark refresh trigger", "epoch", epoch)
	}
}

// Run starts the supervisor and blocks until ctx is canceled. The
// component goroutines log their errors and keep running; none of them
// returns an error to end the run. In-flight REST calls get a
// grace period beyond ctx's cancellation before they're aborted.
func (o *Orchestrator) Run(ctx context.Context) error {
	grace := withGracePeriod(ctx, shutdownGracePeriod)

	if err := o.dir.Refresh(grace); err != nil {
		o.logger.Error("orchestrator: initial directory refresh failed", "err", err)
	}
	if err := o.blockPipeline.SyncGap(grace); err != nil {
		o.logger.Error("orchestrator: initial gap sync failed", "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.stream.Run(gctx, defaultFilters, o.onEvent, func(err error) {
			o.logger.Crit("orchestrator: event stream exhausted every endpoint", "network", o.network, "err", err)
		})
		return nil
	})

	g.Go(func() error {
		return o.directoryRefreshLoop(gctx, grace)
	})

	g.Go(func() error {
		return o.blockProcessingLoop(gctx, grace)
	})

	g.Go(func() error {
		return o.checkpointLoop(gctx, grace)
	})

	return g.Wait()
}

// onEvent classifies every gateway frame and routes it to the block or
// checkpoint pipeline.
func (o *Orchestrator) onEvent(frame chainjson.Object) {
	ev := o.rtr.Route(frame)
	switch ev.Kind {
	case router.KindBlock:
		o.blockPipeline.OnBlockEvent(ev.Block)
	case router.KindCheckpointSealed:
		o.enqueueEpoch(ev.Epoch)
	}
}

func (o *Orchestrator) directoryRefreshLoop(ctx context.Context, workCtx context.Context) error {
	ticker := time.NewTicker(o.dir.RefreshInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := o.dir.Refresh(workCtx); err != nil {
				o.logger.Error("orchestrator: directory refresh failed", "err", err)
			}
		}
	}
}

func (o *Orchestrator) blockProcessingLoop(ctx context.Context, workCtx context.Context) error {
	interval := o.monitoringInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := o.blockPipeline.ProcessEligible(workCtx); err != nil {
				o.logger.Error("orchestrator: process eligible failed", "err", err)
			}
		}
	}
}

func (o *Orchestrator) checkpointLoop(ctx context.Context, workCtx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case epoch := <-o.epochCh:
			o.processEpochAndPredecessor(workCtx, epoch)
		}
	}
}

// processEpochAndPredecessor processes both the reported epoch and the
// one before it: a checkpoint-sealed event for epoch e carries the
// checkpoint for e-1, while an epoch-watermark refresh
// reports the currently open epoch.
func (o *Orchestrator) processEpochAndPredecessor(ctx context.Context, epoch uint64) {
	if epoch > 0 {
		if err := o.checkpointPipe.ProcessEpoch(ctx, epoch-1); err != nil {
			o.logger.Debug("orchestrator: process epoch failed", "epoch", epoch-1, "err", err)
		}
	}
	if err := o.checkpointPipe.ProcessEpoch(ctx, epoch); err != nil {
		o.logger.Debug("orchestrator: process epoch failed", "epoch", epoch, "err", err)
	}
}

// withGracePeriod returns a context that is canceled `grace` after
// parent is canceled, decoupling in-flight REST work from the
// supervisor's own shutdown signal.
func withGracePeriod(parent context.Context, grace time.Duration) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-parent.Done()
		timer := time.NewTimer(grace)
		defer timer.Stop()
		<-timer.C
		cancel()
	}()
	return ctx
}
