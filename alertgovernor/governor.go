// Package alertgovernor implements the alert governor (C7): a family of
// per-subject state machines that decide, from the aggregators' stats
// updates, whether an observation warrants an outbound notification —
// applying hysteresis, step-change thresholds, cooldowns, and recovery
// detection.
package alertgovernor

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/babylon-chain/liveness-monitor/internal/types"
	"github.com/babylon-chain/liveness-monitor/notifier"
)

const (
	defaultRateThreshold            = 90.0
	defaultValidatorDropStep        = 10.0
	defaultFinalityProviderBucket   = 5.0
	defaultMinAlertInterval         = 6 * time.Hour
	defaultConsecutiveMissThreshold = 5
	defaultRecentMissWindow         = 5
	defaultRecentMissThreshold      = 3
	defaultRecentMissCooldown       = time.Hour
	minWindowForRateRule            = 100
)

// Config holds the governor's tunable thresholds.
type Config struct {
	ValidatorThreshold        float64
	FinalityProviderThreshold float64
	BLSThreshold              float64
	ValidatorDropStep         float64
	MinAlertInterval          time.Duration
	ConsecutiveMissThreshold  uint64
	RecentMissWindow          int
	RecentMissThreshold       int
	RecentMissCooldown        time.Duration
}

// DefaultConfig returns the package defaults.
func DefaultConfig() Config {
	return Config{
		ValidatorThreshold:        defaultRateThreshold,
		FinalityProviderThreshold: defaultRateThreshold,
		BLSThreshold:              defaultRateThreshold,
		ValidatorDropStep:         defaultValidatorDropStep,
		MinAlertInterval:          defaultMinAlertInterval,
		ConsecutiveMissThreshold:  defaultConsecutiveMissThreshold,
		RecentMissWindow:          defaultRecentMissWindow,
		RecentMissThreshold:       defaultRecentMissThreshold,
		RecentMissCooldown:        defaultRecentMissCooldown,
	}
}

// Governor is the C7 alert governor for a single network.
type Governor struct {
	network string
	sink    notifier.Sink
	logger  log.Logger
	cfg     Config

	trackedValidators        map[string]struct{}
	trackedFinalityProviders map[string]struct{}

	mu     sync.Mutex
	states map[string]*types.AlertState
	locks  map[string]*sync.Mutex
}

// New builds a Governor. An empty tracking list means all subjects are
// eligible for alerts.
func New(network string, sink notifier.Sink, logger log.Logger, trackedValidators, trackedFinalityProviders []string, cfg Config) *Governor {
	if logger == nil {
		logger = log.Root()
	}
	return &Governor{
		network:                  network,
		sink:                     sink,
		logger:                   logger,
		cfg:                      cfg,
		trackedValidators:        toSet(trackedValidators),
		trackedFinalityProviders: toSet(trackedFinalityProviders),
		states:                   make(map[string]*types.AlertState),
		locks:                    make(map[string]*sync.Mutex),
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, i := range items {
		set[i] = struct{}{}
	}
	return set
}

func (g *Governor) isTrackedValidator(key string) bool {
	if len(g.trackedValidators) == 0 {
		return true
	}
	_, ok := g.trackedValidators[key]
	return ok
}

func (g *Governor) isTrackedFinalityProvider(key string) bool {
	if len(g.trackedFinalityProviders) == 0 {
		return true
	}
	_, ok := g.trackedFinalityProviders[key]
	return ok
}

// lockFor returns the per-subject mutex, creating it on first use.
func (g *Governor) lockFor(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	return l
}

// stateFor returns the per-subject alert state, creating it on first use.
func (g *Governor) stateFor(key string) *types.AlertState {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.states[key]
	if !ok {
		s = &types.AlertState{}
		g.states[key] = s
	}
	return s
}

// send hands the alert to the notification sink. The governor never
// retries; a sink failure only reaches the log.
func (g *Governor) send(ctx context.Context, alert types.Alert) {
	alert.Network = g.network
	if err := g.sink.SendAlert(ctx, alert); err != nil {
		g.logger.Error("alertgovernor: send alert failed", "title", alert.Title, "subject", alert.Metadata["subjectKey"], "err", err)
	}
}

func alertKey(family, subjectKey string) string {
	return fmt.Sprintf("%s:%s", family, subjectKey)
}
