// Package gateway implements the chain gateway (C1): a pooled REST
// client with endpoint round-robin and a long-lived event subscription
// with exponential-backoff reconnect, hiding endpoint failover from
// every consumer above it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/babylon-chain/liveness-monitor/internal/chainjson"
)

// ErrRotationExhausted is returned when a REST call has failed against
// every configured endpoint in one full round-robin rotation.
var ErrRotationExhausted = errors.New("gateway: exhausted rest endpoint rotation")

// RESTClient is a round-robin REST client over N REST endpoints for a
// single network.
type RESTClient struct {
	mu        sync.Mutex
	endpoints []string
	idx       int
	client    *resty.Client
}

// NewRESTClient builds a REST client over the given base URLs, in the
// order they should be tried.
func NewRESTClient(endpoints []string, timeout time.Duration) (*RESTClient, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("gateway: at least one rest endpoint is required")
	}
	return &RESTClient{
		endpoints: append([]string(nil), endpoints...),
		client:    resty.New().SetTimeout(timeout),
	}, nil
}

// Get issues a GET against path+query, rotating through REST endpoints
// on transport failure or a non-2xx response, and aborting with
// ErrRotationExhausted after one full rotation without success.
func (c *RESTClient) Get(ctx context.Context, path string, query map[string]string) (chainjson.Object, error) {
	n := len(c.endpoints)

	c.mu.Lock()
	start := c.idx
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < n; i++ {
		idx := (start + i) % n

		c.mu.Lock()
		endpoint := c.endpoints[idx]
		c.mu.Unlock()

		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(query).
			Get(endpoint + path)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.IsError() {
			lastErr = fmt.Errorf("gateway: %s returned status %d", endpoint+path, resp.StatusCode())
			continue
		}

		obj, perr := chainjson.ParseObject(resp.Body())
		if perr != nil {
			lastErr = perr
			continue
		}

		c.mu.Lock()
		c.idx = idx
		c.mu.Unlock()
		return obj, nil
	}

	c.mu.Lock()
	c.idx = (start + 1) % n
	c.mu.Unlock()
	return nil, fmt.Errorf("%w: %v", ErrRotationExhausted, lastErr)
}

// CurrentHeight derives the current chain height from the latest-block
// REST endpoint.
func (c *RESTClient) CurrentHeight(ctx context.Context) (uint64, error) {
	obj, err := c.Get(ctx, "/cosmos/base/tendermint/v1beta1/blocks/latest", nil)
	if err != nil {
		return 0, err
	}
	block, ok := obj.Sub("block")
	if !ok {
		return 0, fmt.Errorf("gateway: latest block response missing block")
	}
	header, ok := block.Sub("header")
	if !ok {
		return 0, fmt.Errorf("gateway: latest block response missing header")
	}
	heightStr, ok := header.String("height")
	if !ok {
		return 0, fmt.Errorf("gateway: latest block header missing height")
	}
	return parseHeight(heightStr)
}
