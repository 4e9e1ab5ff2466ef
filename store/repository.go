// Package store defines the persistence interface the rest of the
// monitor depends on and ships an in-memory reference
// implementation fronted by bounded LRU caches, suitable for tests and
// small single-process deployments. A production deployment swaps in a
// MongoDB-backed implementation of the same interface.
package store

import (
	"context"

	"github.com/babylon-chain/liveness-monitor/internal/types"
)

// Repository is the persistence abstraction every component writes
// through: upsert-by-key for each record family, get-by-key,
// list-by-network, and the latest-processed-height watermark.
type Repository interface {
	UpsertValidator(ctx context.Context, network string, v types.ValidatorRecord) error
	GetValidator(ctx context.Context, network, key string) (types.ValidatorRecord, bool, error)
	ListValidators(ctx context.Context, network string) ([]types.ValidatorRecord, error)

	UpsertFinalityProvider(ctx context.Context, network string, fp types.FinalityProviderRecord) error
	GetFinalityProvider(ctx context.Context, network, key string) (types.FinalityProviderRecord, bool, error)
	ListFinalityProviders(ctx context.Context, network string) ([]types.FinalityProviderRecord, error)

	UpsertValidatorStats(ctx context.Context, network string, s types.ValidatorSignatureStats) error
	GetValidatorStats(ctx context.Context, network, key string) (types.ValidatorSignatureStats, bool, error)

	UpsertFinalityProviderStats(ctx context.Context, network string, s types.FinalityProviderStats) error
	GetFinalityProviderStats(ctx context.Context, network, key string) (types.FinalityProviderStats, bool, error)

	UpsertBLSCheckpointStats(ctx context.Context, network string, s types.BLSCheckpointStats) error

	// FindLatestHeightByNetwork reports the highest height this network
	// has durably recorded, for gap-catch-up on startup.
	FindLatestHeightByNetwork(ctx context.Context, network string) (uint64, bool, error)
	RecordLatestHeight(ctx context.Context, network string, height uint64) error
}
