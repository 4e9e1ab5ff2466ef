// Package router implements the event router (C3): a stateless
// demultiplexer that classifies chain-gateway event frames into block
// events and checkpoint-sealed events by shape, discarding
// subscription acknowledgements and anything it doesn't recognize.
package router

import "github.com/babylon-chain/liveness-monitor/internal/chainjson"

// Kind identifies what a routed event carries.
type Kind int

const (
	// KindUnknown events are discarded by the caller.
	KindUnknown Kind = iota
	KindBlock
	KindCheckpointSealed
)

// Event is the router's output: exactly one of Block or Epoch is
// meaningful, selected by Kind.
type Event struct {
	Kind  Kind
	Block chainjson.Object
	Epoch uint64
}

// CheckpointSealedEventKey is the Tendermint event attribute whose value
// carries the sealed epoch number.
const CheckpointSealedEventKey = "babylon.checkpointing.v1.EventCheckpointSealed.checkpoint"
