package blockpipeline

import (
	"context"

	"github.com/babylon-chain/liveness-monitor/aggregator"
	"github.com/babylon-chain/liveness-monitor/internal/chainjson"
)

// processHeight converts one height's block data into per-validator and
// per-finality-provider observations and feeds the aggregators. block
// may be nil, in which case it is fetched via the REST historical-block
// endpoint — the gap catch-up and live paths share this code.
func (p *Pipeline) processHeight(ctx context.Context, h uint64, block chainjson.Object) error {
	if block == nil {
		obj, err := p.rest.BlockAtHeight(ctx, h)
		if err != nil {
			return err
		}
		if b, ok := obj.Sub("block"); ok {
			block = b
		} else {
			block = obj
		}
	}

	ts := blockTimestamp(block)
	round, signedAddrs := extractCommit(block)

	for _, v := range p.dir.Validators() {
		_, signed := signedAddrs[v.ConsensusHex]
		obs := aggregator.BlockSignatureObservation{
			SubjectKey: v.ConsensusHex,
			Height:     h,
			Round:      round,
			Signed:     signed,
			Timestamp:  ts,
		}
		if err := p.validatorAgg.ProcessObservation(ctx, obs); err != nil {
			p.logger.Error("blockpipeline: validator observation failed", "height", h, "key", v.ConsensusHex, "err", err)
		}
	}

	fpSigners, err := p.fpSignersForHeight(ctx, h)
	if err != nil {
		p.logger.Warn("blockpipeline: finality provider vote lookup failed", "height", h, "err", err)
		return nil
	}
	activeKeys, err := p.dir.ActiveFinalityProviders(ctx, h)
	if err != nil {
		p.logger.Warn("blockpipeline: active finality provider lookup failed", "height", h, "err", err)
		return nil
	}
	for _, key := range activeKeys {
		fp, _ := p.dir.LookupFinalityProvider(ctx, key)
		_, signed := fpSigners[key]
		obs := aggregator.FinalityVoteObservation{
			SubjectKey: key,
			Height:     h,
			Signed:     signed,
			Jailed:     fp.Jailed,
			IsActive:   fp.Active,
			Timestamp:  ts,
		}
		if err := p.fpAgg.ProcessObservation(ctx, obs); err != nil {
			p.logger.Error("blockpipeline: finality provider observation failed", "height", h, "key", key, "err", err)
		}
	}
	return nil
}

// fpSignersForHeight returns the set of BTC public keys that voted at
// h, caching the result by height.
func (p *Pipeline) fpSignersForHeight(ctx context.Context, h uint64) (map[string]struct{}, error) {
	if cached, ok := p.fpVoteCache.Get(h); ok {
		return cached, nil
	}
	obj, err := p.rest.VotesAtHeight(ctx, h)
	if err != nil {
		return nil, err
	}
	keys, _ := obj.StringSlice("btc_pks", "btcPks")
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	p.fpVoteCache.Add(h, set)
	return set, nil
}
