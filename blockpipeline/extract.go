package blockpipeline

import (
	"encoding/json"
	"time"

	"github.com/babylon-chain/liveness-monitor/internal/chainjson"
)

// extractCommit reads the commit round and the set of validator
// addresses whose signature counts as signed (block_id_flag equal to
// the commit flag, numeric 2 or string "BLOCK_ID_FLAG_COMMIT", with
// non-empty signature bytes).
func extractCommit(block chainjson.Object) (round uint64, signed map[string]struct{}) {
	signed = make(map[string]struct{})

	commit, ok := block.Sub("last_commit", "lastCommit")
	if !ok {
		return 0, signed
	}
	round, _ = chainjson.FlexUint(commit.Field("round"))

	sigs, ok := commit.Slice("signatures")
	if !ok {
		return round, signed
	}
	for _, sig := range sigs {
		if !isCommitFlag(sig.Field("block_id_flag", "blockIdFlag")) {
			continue
		}
		sigBytes, ok := sig.String("signature")
		if !ok || sigBytes == "" {
			continue
		}
		addr, ok := sig.String("validator_address", "validatorAddress")
		if !ok {
			continue
		}
		signed[addr] = struct{}{}
	}
	return round, signed
}

// isCommitFlag tolerates both the numeric and string encodings a
// Tendermint-style node may use for block_id_flag.
func isCommitFlag(raw json.RawMessage) bool {
	if raw == nil {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == "BLOCK_ID_FLAG_COMMIT"
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n == 2
	}
	return false
}

// blockTimestamp reads the block header's timestamp, defaulting to the
// zero time if absent or unparseable.
func blockTimestamp(block chainjson.Object) time.Time {
	header, ok := block.Sub("header")
	if !ok {
		return time.Time{}
	}
	ts, ok := header.String("time")
	if !ok {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// blockHeight reads the block header's height.
func blockHeight(block chainjson.Object) (uint64, bool) {
	header, ok := block.Sub("header")
	if !ok {
		return 0, false
	}
	return chainjson.FlexUint(header.Field("height"))
}
