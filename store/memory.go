package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/babylon-chain/liveness-monitor/internal/types"
)

const defaultCacheSize = 4096

// MemoryRepository is an in-memory Repository backed by bounded LRU
// caches per record family. It is not a durable system of record —
// it exists so the directory, aggregators, and their tests have a
// concrete Repository to run against without a real database.
type MemoryRepository struct {
	mu sync.RWMutex

	validators          *lru.Cache[string, types.ValidatorRecord]
	finalityProviders   *lru.Cache[string, types.FinalityProviderRecord]
	validatorStats      *lru.Cache[string, types.ValidatorSignatureStats]
	finalityProviderStats *lru.Cache[string, types.FinalityProviderStats]
	blsStats            *lru.Cache[string, types.BLSCheckpointStats]
	latestHeight        map[string]uint64
}

// NewMemoryRepository builds a Repository with the given per-family
// cache capacity. A capacity of 0 uses defaultCacheSize.
func NewMemoryRepository(capacity int) (*MemoryRepository, error) {
	if capacity <= 0 {
		capacity = defaultCacheSize
	}
	validators, err := lru.New[string, types.ValidatorRecord](capacity)
	if err != nil {
		return nil, fmt.Errorf("store: new validator cache: %w", err)
	}
	fps, err := lru.New[string, types.FinalityProviderRecord](capacity)
	if err != nil {
		return nil, fmt.Errorf("store: new finality provider cache: %w", err)
	}
	valStats, err := lru.New[string, types.ValidatorSignatureStats](capacity)
	if err != nil {
		return nil, fmt.Errorf("store: new validator stats cache: %w", err)
	}
	fpStats, err := lru.New[string, types.FinalityProviderStats](capacity)
	if err != nil {
		return nil, fmt.Errorf("store: new finality provider stats cache: %w", err)
	}
	bls, err := lru.New[string, types.BLSCheckpointStats](capacity)
	if err != nil {
		return nil, fmt.Errorf("store: new bls stats cache: %w", err)
	}
	return &MemoryRepository{
		validators:            validators,
		finalityProviders:     fps,
		validatorStats:        valStats,
		finalityProviderStats: fpStats,
		blsStats:              bls,
		latestHeight:          make(map[string]uint64),
	}, nil
}

func compositeKey(network, key string) string {
	return network + "|" + key
}

func (m *MemoryRepository) UpsertValidator(_ context.Context, network string, v types.ValidatorRecord) error {
	for _, k := range v.Keys() {
		m.validators.Add(compositeKey(network, k), v)
	}
	return nil
}

func (m *MemoryRepository) GetValidator(_ context.Context, network, key string) (types.ValidatorRecord, bool, error) {
	v, ok := m.validators.Get(compositeKey(network, key))
	return v, ok, nil
}

func (m *MemoryRepository) ListValidators(_ context.Context, network string) ([]types.ValidatorRecord, error) {
	seen := make(map[string]struct{})
	var out []types.ValidatorRecord
	prefix := network + "|"
	for _, k := range m.validators.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		v, ok := m.validators.Peek(k)
		if !ok {
			continue
		}
		if _, dup := seen[v.ConsensusHex]; dup {
			continue
		}
		seen[v.ConsensusHex] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

func (m *MemoryRepository) UpsertFinalityProvider(_ context.Context, network string, fp types.FinalityProviderRecord) error {
	m.finalityProviders.Add(compositeKey(network, fp.BTCPublicKeyHex), fp)
	return nil
}

func (m *MemoryRepository) GetFinalityProvider(_ context.Context, network, key string) (types.FinalityProviderRecord, bool, error) {
	fp, ok := m.finalityProviders.Get(compositeKey(network, key))
	return fp, ok, nil
}

func (m *MemoryRepository) ListFinalityProviders(_ context.Context, network string) ([]types.FinalityProviderRecord, error) {
	var out []types.FinalityProviderRecord
	prefix := network + "|"
	for _, k := range m.finalityProviders.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		fp, ok := m.finalityProviders.Peek(k)
		if !ok {
			continue
		}
		out = append(out, fp)
	}
	return out, nil
}

func (m *MemoryRepository) UpsertValidatorStats(_ context.Context, network string, s types.ValidatorSignatureStats) error {
	m.validatorStats.Add(compositeKey(network, s.SubjectKey), s)
	return nil
}

func (m *MemoryRepository) GetValidatorStats(_ context.Context, network, key string) (types.ValidatorSignatureStats, bool, error) {
	s, ok := m.validatorStats.Get(compositeKey(network, key))
	return s, ok, nil
}

func (m *MemoryRepository) UpsertFinalityProviderStats(_ context.Context, network string, s types.FinalityProviderStats) error {
	m.finalityProviderStats.Add(compositeKey(network, s.Key), s)
	return nil
}

func (m *MemoryRepository) GetFinalityProviderStats(_ context.Context, network, key string) (types.FinalityProviderStats, bool, error) {
	s, ok := m.finalityProviderStats.Get(compositeKey(network, key))
	return s, ok, nil
}

func (m *MemoryRepository) UpsertBLSCheckpointStats(_ context.Context, network string, s types.BLSCheckpointStats) error {
	m.blsStats.Add(compositeKey(network, fmt.Sprintf("%d", s.Epoch)), s)
	return nil
}

func (m *MemoryRepository) FindLatestHeightByNetwork(_ context.Context, network string) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.latestHeight[network]
	return h, ok, nil
}

func (m *MemoryRepository) RecordLatestHeight(_ context.Context, network string, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.latestHeight[network]; !ok || height > cur {
		m.latestHeight[network] = height
	}
	return nil
}
