// Package directory implements the validator and finality-provider
// identity catalog (C2): periodic refresh from the chain gateway,
// multi-key lookup with memory-then-store fallback, jailed-status
// transition detection, and per-height active-provider resolution.
package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/babylon-chain/liveness-monitor/bech32addr"
	"github.com/babylon-chain/liveness-monitor/gateway"
	"github.com/babylon-chain/liveness-monitor/internal/chainjson"
	"github.com/babylon-chain/liveness-monitor/internal/types"
	"github.com/babylon-chain/liveness-monitor/store"
)

const (
	defaultRefreshInterval = time.Hour
	validatorPageLimit     = 200
)

// JailedTransitionFunc receives every jailed/active flip a refresh
// detects, for the caller to route onward to the alert governor.
type JailedTransitionFunc func(types.JailedTransition)

// Directory is the C2 identity catalog for a single network.
type Directory struct {
	mu sync.RWMutex

	network       string
	valconsPrefix string
	rest          *gateway.RESTClient
	repo          store.Repository
	logger        log.Logger
	onTransition  JailedTransitionFunc

	refreshInterval time.Duration

	validators        map[string]types.ValidatorRecord
	finalityProviders map[string]types.FinalityProviderRecord
}

// New builds a Directory. valconsPrefix is the chain's bech32
// human-readable prefix for consensus addresses (e.g. "bbnvalcons").
// onTransition may be nil if the caller does not want jailed-transition
// callbacks.
func New(network, valconsPrefix string, rest *gateway.RESTClient, repo store.Repository, logger log.Logger, onTransition JailedTransitionFunc) *Directory {
	if logger == nil {
		logger = log.Root()
	}
	if onTransition == nil {
		onTransition = func(types.JailedTransition) {}
	}
	return &Directory{
		network:           network,
		valconsPrefix:     valconsPrefix,
		rest:              rest,
		repo:              repo,
		logger:            logger,
		onTransition:      onTransition,
		refreshInterval:   defaultRefreshInterval,
		validators:        make(map[string]types.ValidatorRecord),
		finalityProviders: make(map[string]types.FinalityProviderRecord),
	}
}

// SetRefreshInterval overrides the default periodic refresh cadence.
func (d *Directory) SetRefreshInterval(interval time.Duration) {
	if interval > 0 {
		d.refreshInterval = interval
	}
}

// RefreshInterval reports the configured periodic refresh cadence.
func (d *Directory) RefreshInterval() time.Duration {
	return d.refreshInterval
}

// Refresh fetches the full paginated validator and finality-provider
// catalogs, derives consensus addresses, replaces the in-memory catalog
// atomically, persists every record, and emits jailed/active transition
// callbacks.
func (d *Directory) Refresh(ctx context.Context) error {
	validators, err := d.fetchAllValidators(ctx)
	if err != nil {
		return fmt.Errorf("directory: refresh validators: %w", err)
	}
	providers, err := d.fetchFinalityProviderCatalog(ctx)
	if err != nil {
		return fmt.Errorf("directory: refresh finality providers: %w", err)
	}

	d.mu.Lock()
	previousValidators := d.validators
	previousProviders := d.finalityProviders

	newValidators := make(map[string]types.ValidatorRecord, len(validators))
	for _, v := range validators {
		for _, k := range v.Keys() {
			newValidators[k] = v
		}
	}
	newProviders := make(map[string]types.FinalityProviderRecord, len(providers))
	for _, fp := range providers {
		newProviders[fp.BTCPublicKeyHex] = fp
	}
	d.validators = newValidators
	d.finalityProviders = newProviders
	d.mu.Unlock()

	now := time.Now()
	for _, v := range validators {
		if err := d.repo.UpsertValidator(ctx, d.network, v); err != nil {
			d.logger.Error("directory: persist validator failed", "key", v.ConsensusHex, "err", err)
		}
		d.emitValidatorJailedTransition(previousValidators, v, now)
	}
	for _, fp := range providers {
		if err := d.repo.UpsertFinalityProvider(ctx, d.network, fp); err != nil {
			d.logger.Error("directory: persist finality provider failed", "key", fp.BTCPublicKeyHex, "err", err)
		}
		d.emitFPJailedTransition(previousProviders, fp, now)
	}

	d.logger.Info("directory: refresh complete", "network", d.network, "validators", len(validators), "finalityProviders", len(providers))
	return nil
}

// emitValidatorJailedTransition compares a validator's previous jailed
// flag against the fresh one and fires onTransition on any flip. First
// observation establishes baseline without an alert.
func (d *Directory) emitValidatorJailedTransition(previous map[string]types.ValidatorRecord, v types.ValidatorRecord, now time.Time) {
	prev, known := previous[v.ConsensusHex]
	if !known || prev.Jailed == v.Jailed {
		return
	}
	d.onTransition(types.JailedTransition{
		SubjectKey:  v.ConsensusHex,
		SubjectType: types.SubjectValidator,
		WasJailed:   prev.Jailed,
		IsJailed:    v.Jailed,
		ObservedAt:  now,
	})
}

func (d *Directory) emitFPJailedTransition(previous map[string]types.FinalityProviderRecord, fp types.FinalityProviderRecord, now time.Time) {
	prev, known := previous[fp.BTCPublicKeyHex]
	if !known || prev.Jailed == fp.Jailed {
		return
	}
	d.onTransition(types.JailedTransition{
		SubjectKey:  fp.BTCPublicKeyHex,
		SubjectType: types.SubjectFinalityProvider,
		WasJailed:   prev.Jailed,
		IsJailed:    fp.Jailed,
		ObservedAt:  now,
	})
}

// LookupValidator resolves any known key form (operator address,
// consensus address, consensus hex) to the canonical record. It
// consults the memory catalog first, then the persistent store; on a
// store hit it warms the memory catalog with every known alias.
func (d *Directory) LookupValidator(ctx context.Context, key string) (types.ValidatorRecord, bool) {
	d.mu.RLock()
	v, ok := d.validators[key]
	d.mu.RUnlock()
	if ok {
		return v, true
	}

	v, found, err := d.repo.GetValidator(ctx, d.network, key)
	if err != nil || !found {
		return types.ValidatorRecord{}, false
	}

	d.mu.Lock()
	for _, k := range v.Keys() {
		d.validators[k] = v
	}
	d.mu.Unlock()
	return v, true
}

// LookupFinalityProvider resolves a finality provider by BTC public key
// hex, memory-then-store.
func (d *Directory) LookupFinalityProvider(ctx context.Context, key string) (types.FinalityProviderRecord, bool) {
	d.mu.RLock()
	fp, ok := d.finalityProviders[key]
	d.mu.RUnlock()
	if ok {
		return fp, true
	}

	fp, found, err := d.repo.GetFinalityProvider(ctx, d.network, key)
	if err != nil || !found {
		return types.FinalityProviderRecord{}, false
	}

	d.mu.Lock()
	d.finalityProviders[fp.BTCPublicKeyHex] = fp
	d.mu.Unlock()
	return fp, true
}

// Validators returns a snapshot of every distinct validator currently in
// the in-memory catalog, deduplicated by consensus hex.
func (d *Directory) Validators() []types.ValidatorRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{}, len(d.validators))
	out := make([]types.ValidatorRecord, 0, len(d.validators))
	for _, v := range d.validators {
		if _, dup := seen[v.ConsensusHex]; dup {
			continue
		}
		seen[v.ConsensusHex] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ActiveFinalityProviders fetches the provider set active at height and
// stamps the directory's isActive flag accordingly.
func (d *Directory) ActiveFinalityProviders(ctx context.Context, height uint64) ([]string, error) {
	obj, err := d.rest.ActiveFinalityProvidersAtHeight(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("directory: fetch active finality providers: %w", err)
	}
	providerObjs, ok := obj.Slice("finality_providers", "finalityProviders")
	if !ok {
		return nil, nil
	}

	active := make(map[string]struct{}, len(providerObjs))
	keys := make([]string, 0, len(providerObjs))
	for _, p := range providerObjs {
		key, ok := p.String("btc_pk_hex", "btcPkHex")
		if !ok {
			continue
		}
		active[key] = struct{}{}
		keys = append(keys, key)
	}

	d.mu.Lock()
	for key, fp := range d.finalityProviders {
		_, isActive := active[key]
		fp.Active = isActive
		d.finalityProviders[key] = fp
	}
	d.mu.Unlock()

	return keys, nil
}

// fetchAllValidators walks the staking module's paginated validator
// list, deriving each validator's consensus address and hex form from
// its consensus public key.
func (d *Directory) fetchAllValidators(ctx context.Context) ([]types.ValidatorRecord, error) {
	var out []types.ValidatorRecord
	pageKey := ""
	for {
		page, err := d.rest.ValidatorsPage(ctx, validatorPageLimit, pageKey)
		if err != nil {
			return nil, err
		}
		entries, ok := page.Slice("validators")
		if !ok {
			break
		}
		for _, entry := range entries {
			rec, ok := d.parseValidatorEntry(entry)
			if !ok {
				continue
			}
			out = append(out, rec)
		}

		pagination, ok := page.Sub("pagination")
		if !ok {
			break
		}
		next, ok := pagination.String("next_key", "nextKey")
		if !ok || next == "" {
			break
		}
		pageKey = next
	}
	return out, nil
}

// parseValidatorEntry decodes one staking-module validator entry and
// derives its consensus address/hex from the embedded consensus pubkey.
func (d *Directory) parseValidatorEntry(entry chainjson.Object) (types.ValidatorRecord, bool) {
	operatorAddr, ok := entry.String("operator_address", "operatorAddress")
	if !ok {
		return types.ValidatorRecord{}, false
	}
	moniker := ""
	if description, ok := entry.Sub("description"); ok {
		moniker, _ = description.String("moniker")
	}
	jailedStr, ok := entry.String("jailed")
	if !ok {
		// The staking module encodes jailed as a bare JSON bool.
		jailedStr = string(entry.Field("jailed"))
	}

	pubkeyB64 := ""
	if pubkey, ok := entry.Sub("consensus_pubkey", "consensusPubkey"); ok {
		pubkeyB64, _ = pubkey.String("key")
	}
	if pubkeyB64 == "" {
		return types.ValidatorRecord{
			OperatorAddress: operatorAddr,
			Moniker:         moniker,
			Jailed:          jailedStr == "true",
		}, true
	}

	raw, err := decodeBase64(pubkeyB64)
	if err != nil {
		d.logger.Warn("directory: undecodable consensus pubkey", "operator", operatorAddr, "err", err)
		return types.ValidatorRecord{
			OperatorAddress: operatorAddr,
			Moniker:         moniker,
			Jailed:          jailedStr == "true",
		}, true
	}

	consensusAddr, err := bech32addr.ConsensusAddress(d.valconsPrefix, raw)
	if err != nil {
		d.logger.Warn("directory: consensus address derivation failed", "operator", operatorAddr, "err", err)
	}

	return types.ValidatorRecord{
		OperatorAddress:  operatorAddr,
		ConsensusAddress: consensusAddr,
		ConsensusHex:     bech32addr.ConsensusHex(raw),
		Moniker:          moniker,
		Jailed:           jailedStr == "true",
	}, true
}

func (d *Directory) fetchFinalityProviderCatalog(ctx context.Context) ([]types.FinalityProviderRecord, error) {
	obj, err := d.rest.FinalityProvidersCatalog(ctx)
	if err != nil {
		return nil, err
	}
	entries, ok := obj.Slice("finality_providers", "finalityProviders")
	if !ok {
		return nil, nil
	}
	out := make([]types.FinalityProviderRecord, 0, len(entries))
	for _, entry := range entries {
		btcPK, ok := entry.String("btc_pk_hex", "btcPkHex")
		if !ok {
			continue
		}
		owner, _ := entry.String("addr", "owner_address", "ownerAddress")
		jailed, _ := entry.String("jailed")
		out = append(out, types.FinalityProviderRecord{
			BTCPublicKeyHex: btcPK,
			OwnerAddress:    owner,
			Jailed:          jailed == "true",
		})
	}
	return out, nil
}
