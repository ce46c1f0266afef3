package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"escrow/apps/escrow/internal/model"
)

func testIndex() model.EscrowsIndex {
	return model.EscrowsIndex{
		LastIndexed: "2026-08-01T00:00:00Z",
		LastBlock:   22_900_000,
		ChainID:     1,
		Factory:     "0x200C92Dd85730872Ab6A1e7d5E40A067066257cF",
		Escrows: []model.IndexedEscrow{
			{
				Address:         "0xAAA0000000000000000000000000000000000001",
				Funder:          "0xBBB0000000000000000000000000000000000001",
				Token:           "0xccc0000000000000000000000000000000000001",
				Recipient:       "0xDDD0000000000000000000000000000000000001",
				Amount:          "1000000000000000000",
				VestingStart:    1_700_000_000,
				VestingDuration: 31_536_000,
			},
			{
				Address:         "0xAAA0000000000000000000000000000000000002",
				Funder:          "0xBBB0000000000000000000000000000000000002",
				Token:           "0xccc0000000000000000000000000000000000001",
				Recipient:       "0xBBB0000000000000000000000000000000000001",
				Amount:          "5000",
				VestingStart:    1_700_000_000,
				VestingDuration: 1000,
			},
		},
	}
}

func newTestServer(t *testing.T, escrows model.EscrowsIndex) *httptest.Server {
	t.Helper()
	tokens := model.TokensIndex{
		LastUpdated: "2026-08-01T00:00:00Z",
		Tokens: map[string]model.TokenMetadata{
			"0xccc0000000000000000000000000000000000001": {Symbol: "TKN", Name: "Test Token", Decimals: 18},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/data/escrows.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(escrows)
	})
	mux.HandleFunc("/data/tokens.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokens)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestEscrowByAddress(t *testing.T) {
	server := newTestServer(t, testIndex())
	client := NewClient(server.URL+"/data/escrows.json", server.URL+"/data/tokens.json", zap.NewNop())

	escrow, err := client.EscrowByAddress(context.Background(), "0xaaa0000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("EscrowByAddress failed: %v", err)
	}
	if escrow == nil {
		t.Fatal("expected escrow, got nil")
	}
	if escrow.Amount != "1000000000000000000" {
		t.Errorf("Amount = %s, want 1000000000000000000", escrow.Amount)
	}

	missing, err := client.EscrowByAddress(context.Background(), "0xaaa0000000000000000000000000000000000099")
	if err != nil {
		t.Fatalf("EscrowByAddress failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown address")
	}
}

func TestEscrowsByParticipant(t *testing.T) {
	server := newTestServer(t, testIndex())
	client := NewClient(server.URL+"/data/escrows.json", server.URL+"/data/tokens.json", zap.NewNop())

	// Address is funder of the first escrow and recipient of the second.
	matches, err := client.EscrowsByParticipant(context.Background(), "0xbbb0000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("EscrowsByParticipant failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

func TestTokenMetadata(t *testing.T) {
	server := newTestServer(t, testIndex())
	client := NewClient(server.URL+"/data/escrows.json", server.URL+"/data/tokens.json", zap.NewNop())

	metadata, err := client.TokenMetadata(context.Background(), "0xCCC0000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("TokenMetadata failed: %v", err)
	}
	if metadata == nil || metadata.Symbol != "TKN" {
		t.Fatalf("metadata = %+v, want symbol TKN", metadata)
	}
}

func TestServesCachedSnapshotWhenRefreshFails(t *testing.T) {
	var failing atomic.Bool
	escrows := testIndex()

	mux := http.NewServeMux()
	mux.HandleFunc("/data/escrows.json", func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(escrows)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL+"/data/escrows.json", server.URL+"/data/tokens.json", zap.NewNop())

	first, err := client.Escrows(context.Background())
	if err != nil {
		t.Fatalf("initial fetch failed: %v", err)
	}

	// Force the next refresh to fail; the cached snapshot must be served.
	failing.Store(true)
	client.mu.Lock()
	client.escrowsFetched = client.escrowsFetched.Add(-2 * escrowsStaleAfter)
	client.mu.Unlock()

	second, err := client.Escrows(context.Background())
	if err != nil {
		t.Fatalf("expected stale snapshot, got error: %v", err)
	}
	if len(second.Escrows) != len(first.Escrows) {
		t.Errorf("stale snapshot differs from original")
	}
}

func TestInitialFetchFailureIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/data/escrows.json", server.URL+"/data/tokens.json", zap.NewNop())

	if _, err := client.Escrows(context.Background()); err == nil {
		t.Fatal("expected error when no snapshot exists yet")
	}
}
