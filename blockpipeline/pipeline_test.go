package blockpipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/babylon-chain/liveness-monitor/aggregator"
	"github.com/babylon-chain/liveness-monitor/directory"
	"github.com/babylon-chain/liveness-monitor/gateway"
	"github.com/babylon-chain/liveness-monitor/store"
)

func newTestServer(t *testing.T, currentHeight uint64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cosmos/base/tendermint/v1beta1/blocks/latest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"block": {"header": {"height": "%d"}}}`, currentHeight)
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
		fmt.Fprint(w, `{"current_epoch": "7"}`)
	})
	mux.HandleFunc("/cosmos/base/tendermint/v1beta1/blocks/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"block": {"header": {"height": "1", "time": "2024-01-01T00:00:00Z"}, "last_commit": {"round": "0", "signatures": []}}}`)
	})
	return httptest.NewServer(mux)
}

func newTestPipeline(t *testing.T, srv *httptest.Server, repo store.Repository) *Pipeline {
	t.Helper()
	rest, err := gateway.NewRESTClient([]string{srv.URL}, 5*time.Second)
	if err != nil {
		t.Fatalf("new rest client: %v", err)
	}
	dir := directory.New("testnet", "bbnvalcons", rest, repo, nil, nil)
	validatorAgg := aggregator.NewValidatorAggregator("testnet", repo, nil, nil)
	fpAgg := aggregator.NewFinalityProviderAggregator("testnet", repo, nil, nil)

	p, err := New("testnet", rest, dir, repo, validatorAgg, fpAgg, nil, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestPipelineOnBlockEventDropsAtOrBehindWatermark(t *testing.T) {
	srv := newTestServer(t, 1100)
	defer srv.Close()
	repo, _ := store.NewMemoryRepository(0)
	p := newTestPipeline(t, srv, repo)

	p.watermark = 100
	block := mustParse(t, `{"header": {"height": "100"}}`)
	p.OnBlockEvent(block)
	if p.pending.len() != 0 {
		t.Fatalf("expected height at watermark to be dropped")
	}

	block2 := mustParse(t, `{"header": {"height": "101"}}`)
	p.OnBlockEvent(block2)
	if p.pending.len() != 1 {
		t.Fatalf("expected height above watermark to be enqueued")
	}
}

func TestPipelineProcessEligibleRespectsFinalityLag(t *testing.T) {
	srv := newTestServer(t, 1100)
	defer srv.Close()
	repo, _ := store.NewMemoryRepository(0)
	p := newTestPipeline(t, srv, repo)

	p.maxSeen = 5
	p.pending.push(4) // 4+F(3) = 7 > maxSeen(5): not yet eligible

	if err := p.ProcessEligible(context.Background()); err != nil {
		t.Fatalf("process eligible: %v", err)
	}
	if p.Watermark() != 0 {
		t.Fatalf("expected nothing processed yet, watermark=%d", p.Watermark())
	}

	p.mu.Lock()
	p.maxSeen = 7
	p.mu.Unlock()

	if err := p.ProcessEligible(context.Background()); err != nil {
		t.Fatalf("process eligible: %v", err)
	}
	if p.Watermark() != 4 {
		t.Fatalf("expected watermark to advance to 4, got %d", p.Watermark())
	}
}

func TestPipelineSyncGapMatchesScenarioS5(t *testing.T) {
	srv := newTestServer(t, 1100)
	defer srv.Close()
	repo, _ := store.NewMemoryRepository(0)
	if err := repo.RecordLatestHeight(context.Background(), "testnet", 1000); err != nil {
		t.Fatalf("seed latest height: %v", err)
	}
	p := newTestPipeline(t, srv, repo)

	if err := p.SyncGap(context.Background()); err != nil {
		t.Fatalf("sync gap: %v", err)
	}

	if p.Watermark() != 1097 {
		t.Fatalf("expected watermark 1097 after sync, got %d", p.Watermark())
	}
	if p.MaxSeen() != 1097 {
		t.Fatalf("expected maxSeen 1097 after sync, got %d", p.MaxSeen())
	}

	p.OnBlockEvent(mustParse(t, `{"header": {"height": "1101"}}`))
	if p.pending.len() != 1 {
		t.Fatalf("expected 1101 enqueued")
	}
	if err := p.ProcessEligible(context.Background()); err != nil {
		t.Fatalf("process eligible: %v", err)
	}
	if p.Watermark() != 1097 {
		t.Fatalf("expected 1101 to remain ineligible until maxSeen>=1104, watermark=%d", p.Watermark())
	}
}
