// Package checkpointpipeline implements the checkpoint pipeline (C5):
// for each checkpoint-sealed event at an epoch boundary, it locates the
// on-chain transaction carrying the injected BLS checkpoint and derives
// a per-epoch participation stats record.
package checkpointpipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/babylon-chain/liveness-monitor/aggregator"
	"github.com/babylon-chain/liveness-monitor/directory"
	"github.com/babylon-chain/liveness-monitor/gateway"
	"github.com/babylon-chain/liveness-monitor/internal/chainjson"
	"github.com/babylon-chain/liveness-monitor/internal/types"
)

const (
	epochBlocks           = 360
	checkpointMsgTypeURL  = "/babylon.checkpointing.v1.MsgInjectedCheckpoint"
	maxOffsetScan         = 5
	unknownValidatorLabel = "Unknown"
)

// ErrCheckpointNotFound is returned when no injected checkpoint message
// is found across all scanned offsets; the epoch is left unmarked and
// will not be retried until a fresh event arrives.
var ErrCheckpointNotFound = errors.New("checkpointpipeline: checkpoint message not found after all offsets")

// Pipeline is the C5 checkpoint pipeline for a single network.
type Pipeline struct {
	network string
	rest    *gateway.RESTClient
	dir     *directory.Directory
	blsAgg  *aggregator.BLSCheckpointAggregator
	logger  log.Logger

	mu        sync.Mutex
	processed map[uint64]struct{}
}

// New builds a Pipeline.
func New(network string, rest *gateway.RESTClient, dir *directory.Directory, blsAgg *aggregator.BLSCheckpointAggregator, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Root()
	}
	return &Pipeline{
		network:   network,
		rest:      rest,
		dir:       dir,
		blsAgg:    blsAgg,
		logger:    logger,
		processed: make(map[uint64]struct{}),
	}
}

// ProcessEpoch fetches the injected checkpoint for epoch e and emits a
// BLS checkpoint observation. Each epoch is processed at most once per
// process lifetime; a repeat call is a no-op.
func (p *Pipeline) ProcessEpoch(ctx context.Context, epoch uint64) error {
	p.mu.Lock()
	_, done := p.processed[epoch]
	p.mu.Unlock()
	if done {
		return nil
	}

	h0 := epoch*epochBlocks + 1
	for offset := uint64(0); offset < maxOffsetScan; offset++ {
		h := h0 + offset
		obj, err := p.rest.TxsAtHeight(ctx, h)
		if err != nil {
			p.logger.Warn("checkpointpipeline: fetch transactions failed", "epoch", epoch, "height", h, "err", err)
			continue
		}
		msg, ok := findInjectedCheckpointMsg(obj)
		if !ok {
			continue
		}

		stats, err := p.buildStats(ctx, epoch, msg)
		if err != nil {
			p.logger.Warn("checkpointpipeline: build stats failed", "epoch", epoch, "height", h, "err", err)
			continue
		}
		if err := p.blsAgg.ProcessObservation(ctx, aggregator.BLSCheckpointObservationRecord{Stats: stats}); err != nil {
			p.logger.Error("checkpointpipeline: aggregator rejected observation", "epoch", epoch, "err", err)
		}

		p.mu.Lock()
		p.processed[epoch] = struct{}{}
		p.mu.Unlock()
		return nil
	}

	return fmt.Errorf("%w: epoch %d", ErrCheckpointNotFound, epoch)
}

// findInjectedCheckpointMsg returns the first message in the tx
// response whose type URI matches MsgInjectedCheckpoint and which
// carries extended_commit_info.
func findInjectedCheckpointMsg(obj chainjson.Object) (chainjson.Object, bool) {
	txResponses, ok := obj.Slice("tx_responses", "txResponses")
	if !ok {
		return nil, false
	}
	for _, txResp := range txResponses {
		tx, ok := txResp.Sub("tx")
		if !ok {
			continue
		}
		body, ok := tx.Sub("body")
		if !ok {
			continue
		}
		messages, ok := body.Slice("messages")
		if !ok {
			continue
		}
		for _, msg := range messages {
			typeURL, ok := msg.String("@type")
			if !ok || typeURL != checkpointMsgTypeURL {
				continue
			}
			if _, ok := msg.Sub("extended_commit_info", "extendedCommitInfo"); !ok {
				continue
			}
			return msg, true
		}
	}
	return nil, false
}

// buildStats derives the BLS checkpoint stats record from the injected
// checkpoint message's votes vector.
func (p *Pipeline) buildStats(ctx context.Context, epoch uint64, msg chainjson.Object) (types.BLSCheckpointStats, error) {
	authoritativeEpoch := epoch
	if ckpt, ok := msg.Sub("ckpt"); ok {
		if e, ok := chainjson.FlexUint(ckpt.Field("epoch_num", "epochNum")); ok {
			authoritativeEpoch = e
		}
	}

	eci, ok := msg.Sub("extended_commit_info", "extendedCommitInfo")
	if !ok {
		return types.BLSCheckpointStats{}, fmt.Errorf("checkpointpipeline: message missing extended_commit_info")
	}
	votes, ok := eci.Slice("votes")
	if !ok {
		return types.BLSCheckpointStats{}, fmt.Errorf("checkpointpipeline: extended_commit_info missing votes")
	}

	var totalPower, signedPower uint64
	var signedCount int
	for _, v := range votes {
		power, _ := chainjson.FlexUint(v.Field("validator_power", "validatorPower", "power"))
		signed := voteIsSigned(v)
		totalPower += power
		if signed {
			signedPower += power
			signedCount++
		}

		if addr, ok := v.String("validator", "validator_address", "validatorAddress"); ok {
			if _, known := p.dir.LookupValidator(ctx, addr); !known {
				p.logger.Debug("checkpointpipeline: unknown validator in checkpoint vote", "validator", addr, "label", unknownValidatorLabel)
			}
		}
	}

	return types.BLSCheckpointStats{
		Epoch:                    authoritativeEpoch,
		Network:                  p.network,
		TotalValidators:          len(votes),
		TotalPower:               totalPower,
		SignedPower:              signedPower,
		UnsignedPower:            totalPower - signedPower,
		ParticipationRateByCount: formatPercent(signedCount, len(votes)),
		ParticipationRateByPower: formatPercentU64(signedPower, totalPower),
		Timestamp:                time.Now(),
	}, nil
}

// voteIsSigned is signed iff the vote's flag
// is exactly "BLOCK_ID_FLAG_COMMIT" and its extension signature is
// non-empty.
func voteIsSigned(v chainjson.Object) bool {
	flag, ok := v.String("block_id_flag", "blockIdFlag")
	if !ok || flag != "BLOCK_ID_FLAG_COMMIT" {
		return false
	}
	extSig, ok := v.String("extension_signature", "extensionSignature")
	return ok && extSig != ""
}

func formatPercent(part, total int) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", 100*float64(part)/float64(total))
}

func formatPercentU64(part, total uint64) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", 100*float64(part)/float64(total))
}
