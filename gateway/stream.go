package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/babylon-chain/liveness-monitor/internal/chainjson"
)

// Filter is one JSON-RPC subscription to open against the event stream.
type Filter struct {
	ID    string
	Query string
}

// stepBackoff implements backoff.BackOff with a capped exponential
// curve: delay = base * min(2^(attempt-1), 10), stopping once
// maxAttempts is exceeded so the caller can rotate to the next
// endpoint and reset the counter.
type stepBackoff struct {
	base        time.Duration
	maxAttempts int
	attempt     int
}

func (b *stepBackoff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt > b.maxAttempts {
		return backoff.Stop
	}
	mult := 1 << uint(b.attempt-1)
	if mult > 10 {
		mult = 10
	}
	return b.base * time.Duration(mult)
}

func (b *stepBackoff) Reset() { b.attempt = 0 }

const (
	defaultBackoffBase  = time.Second
	defaultMaxAttempts  = 8
	defaultWriteTimeout = 10 * time.Second
)

// EventStream subscribes to a long-lived event feed across one of M
// WebSocket endpoints, reconnecting with exponential backoff and
// rotating endpoints once the per-endpoint attempt budget is spent.
type EventStream struct {
	mu        sync.Mutex
	endpoints []string
	idx       int

	backoffBase time.Duration
	maxAttempts int

	logger log.Logger
}

// NewEventStream builds a subscriber over the given websocket endpoints.
func NewEventStream(endpoints []string, logger log.Logger) (*EventStream, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("gateway: at least one websocket endpoint is required")
	}
	if logger == nil {
		logger = log.Root()
	}
	return &EventStream{
		endpoints:   append([]string(nil), endpoints...),
		backoffBase: defaultBackoffBase,
		maxAttempts: defaultMaxAttempts,
		logger:      logger,
	}, nil
}

// Run opens the stream and blocks, delivering parsed events to onEvent
// until ctx is canceled. Unparseable frames and subscription acks are
// dropped with debug logging; a fatal condition (e.g. every endpoint
// exhausted) is reported via onFatal without returning.
func (s *EventStream) Run(ctx context.Context, filters []Filter, onEvent func(chainjson.Object), onFatal func(error)) {
	bo := &stepBackoff{base: s.backoffBase, maxAttempts: s.maxAttempts}
	rotationsWithoutSuccess := 0

	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		endpoint := s.endpoints[s.idx]
		s.mu.Unlock()

		connected, err := s.runOnce(ctx, endpoint, filters, onEvent)
		if ctx.Err() != nil {
			return
		}
		if connected {
			rotationsWithoutSuccess = 0
		}
		if err != nil {
			s.logger.Warn("event stream disconnected", "endpoint", endpoint, "err", err)
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			s.rotateEndpoint()
			bo.Reset()
			rotationsWithoutSuccess++
			if rotationsWithoutSuccess >= len(s.endpoints) && onFatal != nil {
				onFatal(fmt.Errorf("gateway: every websocket endpoint failed a full rotation: %w", err))
				rotationsWithoutSuccess = 0
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *EventStream) rotateEndpoint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx = (s.idx + 1) % len(s.endpoints)
	s.logger.Warn("rotating websocket endpoint", "next", s.endpoints[s.idx])
}

// runOnce dials endpoint, subscribes to every filter, and reads frames
// until the connection breaks. connected reports whether the dial (and
// thus the endpoint) was reachable at all, regardless of how the read
// loop ended.
func (s *EventStream) runOnce(ctx context.Context, endpoint string, filters []Filter, onEvent func(chainjson.Object)) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	for _, f := range filters {
		msg := map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "subscribe",
			"id":      f.ID,
			"params":  []string{f.Query},
		}
		if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
			return true, fmt.Errorf("set write deadline: %w", err)
		}
		if err := conn.WriteJSON(msg); err != nil {
			return true, fmt.Errorf("subscribe %s: %w", f.ID, err)
		}
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		obj, perr := chainjson.ParseObject(raw)
		if perr != nil {
			s.logger.Debug("dropping unparseable frame", "err", perr, "len", len(raw))
			continue
		}
		if isSubscriptionAck(obj) {
			s.logger.Debug("subscription ack", "id", string(obj.Field("id")))
			continue
		}
		onEvent(obj)
	}
}

func isSubscriptionAck(obj chainjson.Object) bool {
	if raw := obj.Field("result"); raw != nil {
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return true
		}
	}
	return false
}
