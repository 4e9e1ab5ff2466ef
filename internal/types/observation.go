package types

import "time"

// BlockObservation is the per-height shape of a block observation: the
// set of validator keys that signed the commit. The block pipeline (C4)
// does not build it; it feeds aggregator.BlockSignatureObservation and
// aggregator.FinalityVoteObservation values directly.
type BlockObservation struct {
	Height    uint64
	Timestamp time.Time
	Round     uint64
	Signers   map[string]struct{}
	// FPSigners is populated only for heights the finality-provider vote
	// endpoint was consulted for; nil means "not applicable to this height".
	FPSigners map[string]struct{}
}

// CheckpointVote is a single validator's BLS participation in a
// checkpoint, as extracted from extended_commit_info.votes.
type CheckpointVote struct {
	ValidatorKey string
	Power        uint64
	Signed       bool
}

// CheckpointObservation is the per-epoch shape of a checkpoint
// observation. The checkpoint pipeline (C5) does not build it; it
// derives a BLSCheckpointStats record directly from the votes.
type CheckpointObservation struct {
	Epoch     uint64
	Timestamp time.Time
	Votes     []CheckpointVote
}

// TotalPower sums the power of every vote in the observation.
func (c CheckpointObservation) TotalPower() uint64 {
	var total uint64
	for _, v := range c.Votes {
		total += v.Power
	}
	return total
}

// SignedPower sums the power of votes that actually signed.
func (c CheckpointObservation) SignedPower() uint64 {
	var total uint64
	for _, v := range c.Votes {
		if v.Signed {
			total += v.Power
		}
	}
	return total
}
