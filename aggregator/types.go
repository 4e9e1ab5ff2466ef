// Package aggregator implements the three participation-statistics
// accumulators (C6): per-validator block signatures, per-finality-
// provider vote signatures, and per-epoch BLS checkpoint stats. Each
// conforms to the same capability set so the orchestrator can start,
// stop, and feed all three uniformly without an inheritance hierarchy.
package aggregator

import (
	"context"
	"time"

	"github.com/babylon-chain/liveness-monitor/internal/types"
)

// Observation is the sum type fed to Aggregator.ProcessObservation. Each
// concrete aggregator expects exactly one of the variants below and
// returns an error for any other.
type Observation interface {
	isObservation()
}

// BlockSignatureObservation is one validator's signing outcome for a
// single height, fed to the validator block-signature aggregator.
type BlockSignatureObservation struct {
	SubjectKey string
	Height     uint64
	Round      uint64
	Signed     bool
	Timestamp  time.Time
}

func (BlockSignatureObservation) isObservation() {}

// FinalityVoteObservation is one finality provider's vote outcome for a
// single height, fed to the finality-provider vote aggregator.
type FinalityVoteObservation struct {
	SubjectKey string
	Height     uint64
	Signed     bool
	Jailed     bool
	IsActive   bool
	Timestamp  time.Time
}

func (FinalityVoteObservation) isObservation() {}

// BLSCheckpointObservationRecord carries a fully-formed per-epoch BLS
// checkpoint stats record, fed to the BLS checkpoint aggregator as-is
// (no online aggregation).
type BLSCheckpointObservationRecord struct {
	Stats types.BLSCheckpointStats
}

func (BLSCheckpointObservationRecord) isObservation() {}

// Aggregator is the capability set every C6 component conforms to:
// lifecycle control plus the single observation-processing entry point.
type Aggregator interface {
	Start(ctx context.Context) error
	Stop() error
	ProcessObservation(ctx context.Context, obs Observation) error
	IsEnabled() bool
}
