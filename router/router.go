package router

import (
	"encoding/json"
	"regexp"
	"strconv"

	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/babylon-chain/liveness-monitor/internal/chainjson"
)

var epochNumPattern = regexp.MustCompile(`epoch_num=(\d+)`)

// Router demultiplexes gateway event frames by shape. It is stateless:
// routing decisions depend only on the frame passed to Route.
type Router struct {
	logger log.Logger
}

// New builds a Router. logger may be nil, in which case the root log15
// logger is used for discarded-frame debug output.
func New(logger log.Logger) *Router {
	if logger == nil {
		logger = log.Root()
	}
	return &Router{logger: logger}
}

// Route classifies a single event frame. Unrecognized shapes and
// subscription acks return Kind == KindUnknown and are logged at debug
// level only, never treated as an error.
func (r *Router) Route(frame chainjson.Object) Event {
	result, ok := frame.Sub("result")
	if !ok {
		r.logger.Debug("router: frame missing result, discarding")
		return Event{Kind: KindUnknown}
	}

	if block, ok := extractBlock(result); ok {
		return Event{Kind: KindBlock, Block: block}
	}

	if epoch, ok := extractCheckpointSealedEpoch(result); ok {
		return Event{Kind: KindCheckpointSealed, Epoch: epoch}
	}

	r.logger.Debug("router: unrecognized frame shape, discarding")
	return Event{Kind: KindUnknown}
}

// extractBlock looks for a NewBlock-shaped payload: result.data.value
// carrying a block with block.header.height.
func extractBlock(result chainjson.Object) (chainjson.Object, bool) {
	data, ok := result.Sub("data")
	if !ok {
		return nil, false
	}
	value, ok := data.Sub("value")
	if !ok {
		return nil, false
	}
	block, ok := value.Sub("block")
	if !ok {
		return nil, false
	}
	header, ok := block.Sub("header")
	if !ok {
		return nil, false
	}
	if _, ok := header.String("height"); !ok {
		return nil, false
	}
	return block, true
}

// extractCheckpointSealedEpoch looks for result.events carrying the
// checkpoint-sealed predicate key, whose value contains
// "epoch_num=<digits>".
func extractCheckpointSealedEpoch(result chainjson.Object) (uint64, bool) {
	events, ok := result.Sub("events")
	if !ok {
		return 0, false
	}
	raw := events.Field(CheckpointSealedEventKey)
	if raw == nil {
		return 0, false
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return 0, false
	}
	for _, v := range values {
		m := epochNumPattern.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		epoch, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		return epoch, true
	}
	return 0, false
}
