package gateway

import (
	"context"
	"fmt"
	"strconv"

	"github.com/babylon-chain/liveness-monitor/internal/chainjson"
)

// BlockAtHeight fetches the historical block at h.
func (c *RESTClient) BlockAtHeight(ctx context.Context, h uint64) (chainjson.Object, error) {
	return c.Get(ctx, fmt.Sprintf("/cosmos/base/tendermint/v1beta1/blocks/%d", h), nil)
}

// TxsAtHeight fetches every transaction included in block h.
func (c *RESTClient) TxsAtHeight(ctx context.Context, h uint64) (chainjson.Object, error) {
	return c.Get(ctx, fmt.Sprintf("/cosmos/tx/v1beta1/txs/block/%d", h), nil)
}

// CurrentEpoch fetches the epoching module's current-epoch watermark.
func (c *RESTClient) CurrentEpoch(ctx context.Context) (chainjson.Object, error) {
	return c.Get(ctx, "/babylon/epoching/v1/current_epoch", nil)
}

// VotesAtHeight fetches the finality-provider BTC public keys that
// voted at height h.
func (c *RESTClient) VotesAtHeight(ctx context.Context, h uint64) (chainjson.Object, error) {
	return c.Get(ctx, fmt.Sprintf("/babylon/finality/v1/votes/%d", h), nil)
}

// ActiveFinalityProvidersAtHeight fetches the finality-provider set
// active at height h.
func (c *RESTClient) ActiveFinalityProvidersAtHeight(ctx context.Context, h uint64) (chainjson.Object, error) {
	return c.Get(ctx, fmt.Sprintf("/babylon/finality/v1/finality_providers/%d", h), nil)
}

// ValidatorsPage fetches one page of the staking module's validator
// list, following Cosmos SDK pagination conventions.
func (c *RESTClient) ValidatorsPage(ctx context.Context, limit uint64, pageKey string) (chainjson.Object, error) {
	query := map[string]string{"pagination.limit": strconv.FormatUint(limit, 10)}
	if pageKey != "" {
		query["pagination.key"] = pageKey
	}
	return c.Get(ctx, "/cosmos/staking/v1beta1/validators", query)
}

// FinalityProvidersCatalog fetches the full btcstaking finality
// provider catalog (single large page,).
func (c *RESTClient) FinalityProvidersCatalog(ctx context.Context) (chainjson.Object, error) {
	return c.Get(ctx, "/babylon/btcstaking/v1/finality_providers", map[string]string{"pagination.limit": "1000"})
}
