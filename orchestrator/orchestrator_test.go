package orchestrator

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/babylon-chain/liveness-monitor/internal/chainjson"
	"github.com/babylon-chain/liveness-monitor/internal/config"
	"github.com/babylon-chain/liveness-monitor/notifier"
	"github.com/babylon-chain/liveness-monitor/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cosmos/base/tendermint/v1beta1/blocks/latest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"block": {"header": {"height": "10"}}}`)
	})
	mux.HandleFunc("/cosmos/staking/v1beta1/validators", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"validators": [], "pagination": {"next_key": ""}}`)
	})
	mux.HandleFunc("/babylon/btcstaking/v1/finality_providers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"finality_providers": []}`)
	})
	mux.HandleFunc("/babylon/finality/v1/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"btc_pks": [], "finality_providers": []}`)
	})
	mux.HandleFunc("/babylon/epoching/v1/current_epoch", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"current_epoch": "1"}`)
	})
	mux.HandleFunc("/cosmos/base/tendermint/v1beta1/blocks/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"block": {"header": {"height": "1", "time": "2024-01-01T00:00:00Z"}, "last_commit": {"round": "0", "signatures": []}}}`)
	})
	mux.HandleFunc("/cosmos/tx/v1beta1/txs/block/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tx_responses": []}`)
	})
	return httptest.NewServer(mux)
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	srv := newTestServer(t)
	t.Cleanup(srv.Close)

	repo, err := store.NewMemoryRepository(0)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	sink := notifier.NewLogSink(nil)

	netCfg := config.NetworkConfig{
		Name:     "testnet",
		RESTURLs: []string{srv.URL},
		WSURLs:   []string{"ws://127.0.0.1:0/websocket"},
	}
	globalCfg := config.Config{
		MonitoringInterval:                 time.Minute,
		FinalizedBlocksWait:                3,
		ValidatorSignatureMonitoringEnabled: true,
		FinalityProviderMonitoringEnabled:   true,
		BLSSignatureMonitoringEnabled:       true,
		ValidatorSignatureThreshold:         90,
		FinalityProviderSignatureThreshold:  90,
		BLSSignatureThreshold:               90,
		AlertMinInterval:                    6 * time.Hour,
		SignatureRateMinDrop:                10,
	}

	o, err := New(netCfg, globalCfg, repo, sink, nil)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestNewWiresAllComponents(t *testing.T) {
	o := newTestOrchestrator(t)
	if o.dir == nil || o.validatorAgg == nil || o.fpAgg == nil || o.blsAgg == nil {
		t.Fatalf("expected all components constructed")
	}
	if o.blockPipeline == nil || o.checkpointPipe == nil || o.governor == nil {
		t.Fatalf("expected pipelines and governor constructed")
	}
}

func TestOnEventRoutesBlockToPipeline(t *testing.T) {
	o := newTestOrchestrator(t)
	frame, err := chainjson.ParseObject([]byte(`{"result": {"data": {"value": {"block": {"header": {"height": "500"}}}}}}`))
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	o.onEvent(frame)
	if o.blockPipeline.MaxSeen() != 500 {
		t.Fatalf("expected block event routed to pipeline, maxSeen=%d", o.blockPipeline.MaxSeen())
	}
}

func TestOnEventRoutesCheckpointSealedToEpochChannel(t *testing.T) {
	o := newTestOrchestrator(t)
	frame, err := chainjson.ParseObject([]byte(`{"result": {"events": {"babylon.checkpointing.v1.EventCheckpointSealed.checkpoint": ["epoch_num=5"]}}}`))
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	o.onEvent(frame)
	select {
	case epoch := <-o.epochCh:
		if epoch != 5 {
			t.Fatalf("expected epoch 5, got %d", epoch)
		}
	default:
		t.Fatalf("expected epoch enqueued")
	}
}

func TestEnqueueEpochDropsWhenChannelFull(t *testing.T) {
	o := newTestOrchestrator(t)
	for i := 0; i < epochChannelBuffer; i++ {
		o.enqueueEpoch(uint64(i))
	}
	// One more past capacity must not block.
	done := make(chan struct{})
	go func() {
		o.enqueueEpoch(999)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("enqueueEpoch blocked on a full channel")
	}
}
