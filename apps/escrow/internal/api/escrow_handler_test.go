package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"escrow/apps/escrow/internal/model"
	"escrow/apps/escrow/internal/prefs"
)

const (
	testEscrowAddr = "0x1111111111111111111111111111111111111111"
	testTokenAddr  = "0x2222222222222222222222222222222222222222"
	testRecipient  = "0x3333333333333333333333333333333333333333"
	testFunder     = "0x4444444444444444444444444444444444444444"
)

type stubIndex struct {
	escrows []model.IndexedEscrow
	tokens  map[string]model.TokenMetadata
	err     error
}

func (s *stubIndex) Escrows(ctx context.Context) (*model.EscrowsIndex, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.EscrowsIndex{Escrows: s.escrows}, nil
}

func (s *stubIndex) EscrowByAddress(ctx context.Context, address string) (*model.IndexedEscrow, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.escrows {
		if strings.EqualFold(s.escrows[i].Address, address) {
			escrow := s.escrows[i]
			return &escrow, nil
		}
	}
	return nil, nil
}

func (s *stubIndex) EscrowsByParticipant(ctx context.Context, address string) ([]model.IndexedEscrow, error) {
	if s.err != nil {
		return nil, s.err
	}
	var matches []model.IndexedEscrow
	for _, escrow := range s.escrows {
		if strings.EqualFold(escrow.Recipient, address) || strings.EqualFold(escrow.Funder, address) {
			matches = append(matches, escrow)
		}
	}
	return matches, nil
}

func (s *stubIndex) TokenMetadata(ctx context.Context, tokenAddress string) (*model.TokenMetadata, error) {
	if metadata, ok := s.tokens[strings.ToLower(tokenAddress)]; ok {
		return &metadata, nil
	}
	return nil, nil
}

type stubLive struct {
	data map[string]*model.LiveEscrowData
	err  error
}

func (s *stubLive) FetchLive(ctx context.Context, escrowAddress string) (*model.LiveEscrowData, error) {
	if s.err != nil {
		return nil, s.err
	}
	if live, ok := s.data[strings.ToLower(escrowAddress)]; ok {
		return live, nil
	}
	return nil, errors.New("no live data")
}

func (s *stubLive) FetchLiveBatch(ctx context.Context, escrowAddresses []string) map[string]*model.LiveEscrowData {
	result := make(map[string]*model.LiveEscrowData)
	if s.err != nil {
		return result
	}
	for _, address := range escrowAddresses {
		if live, ok := s.data[strings.ToLower(address)]; ok {
			result[strings.ToLower(address)] = live
		}
	}
	return result
}

type stubPrices struct {
	prices map[string]model.TokenPrice
	err    error
}

func (s *stubPrices) Prices(ctx context.Context, tokenAddresses []string) (map[string]model.TokenPrice, error) {
	if s.err != nil {
		return nil, s.err
	}
	result := make(map[string]model.TokenPrice)
	for _, address := range tokenAddresses {
		if price, ok := s.prices[strings.ToLower(address)]; ok {
			result[strings.ToLower(address)] = price
		}
	}
	return result, nil
}

func (s *stubPrices) Price(ctx context.Context, tokenAddress string) (*model.TokenPrice, error) {
	if s.err != nil {
		return nil, s.err
	}
	if price, ok := s.prices[strings.ToLower(tokenAddress)]; ok {
		return &price, nil
	}
	return nil, nil
}

type stubTokenChain struct {
	metadata *model.TokenMetadata
	err      error
}

func (s *stubTokenChain) TokenMetadata(ctx context.Context, tokenAddress string) (*model.TokenMetadata, error) {
	return s.metadata, s.err
}

func testIndexedEscrow() model.IndexedEscrow {
	return model.IndexedEscrow{
		Address:         testEscrowAddr,
		Funder:          testFunder,
		Token:           testTokenAddr,
		Recipient:       testRecipient,
		Amount:          "1000000000000000000000",
		VestingStart:    1_700_000_000,
		VestingDuration: 10_000,
		CliffLength:     0,
		BlockNumber:     18_000_000,
		TxHash:          "0xaaaa",
	}
}

func newTestEscrowHandler(index *stubIndex, live *stubLive, prices *stubPrices, tokenChain *stubTokenChain) *EscrowHandler {
	logger := zap.NewNop()
	store := prefs.NewMemoryStore()
	return NewEscrowHandler(
		index,
		live,
		prices,
		tokenChain,
		prefs.NewNameStore(store, logger),
		prefs.NewStarredStore(store, logger),
		prefs.NewRecentStore(store, logger),
		logger,
	)
}

func escrowRouter(h *EscrowHandler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/escrows", h.ListEscrows).Methods("GET")
	router.HandleFunc("/api/escrows/{address}", h.GetEscrow).Methods("GET")
	router.HandleFunc("/api/escrows/{address}/live", h.GetEscrowLive).Methods("GET")
	router.HandleFunc("/api/tokens/{address}", h.GetToken).Methods("GET")
	return router
}

func TestGetEscrowReturnsMergedView(t *testing.T) {
	index := &stubIndex{
		escrows: []model.IndexedEscrow{testIndexedEscrow()},
		tokens: map[string]model.TokenMetadata{
			strings.ToLower(testTokenAddr): {Symbol: "TKN", Name: "Token", Decimals: 18},
		},
	}
	live := &stubLive{data: map[string]*model.LiveEscrowData{
		strings.ToLower(testEscrowAddr): {
			Unclaimed:    big.NewInt(100),
			Locked:       big.NewInt(900),
			TotalClaimed: big.NewInt(0),
			TotalLocked:  big.NewInt(1000),
			Owner:        testFunder,
			DisabledAt:   1_700_010_000,
			EndTime:      1_700_010_000,
			StartTime:    1_700_000_000,
		},
	}}
	handler := newTestEscrowHandler(index, live, &stubPrices{}, &stubTokenChain{})

	req := httptest.NewRequest("GET", "/api/escrows/"+testEscrowAddr, nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp EscrowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Live == nil {
		t.Fatal("expected live data in response")
	}
	if resp.Live.Unclaimed != "100" {
		t.Errorf("expected unclaimed 100, got %s", resp.Live.Unclaimed)
	}
	if resp.Breakdown.Claimable != "100" {
		t.Errorf("expected live claimable to pass through, got %s", resp.Breakdown.Claimable)
	}
	if resp.TokenMetadata == nil || resp.TokenMetadata.Symbol != "TKN" {
		t.Error("expected token metadata from the index")
	}
	if resp.Breakdown.Display == nil {
		t.Error("expected display breakdown when decimals are known")
	}
}

func TestGetEscrowDisplayFields(t *testing.T) {
	index := &stubIndex{escrows: []model.IndexedEscrow{testIndexedEscrow()}}
	handler := newTestEscrowHandler(index, &stubLive{err: errors.New("rpc down")}, &stubPrices{}, &stubTokenChain{})

	req := httptest.NewRequest("GET", "/api/escrows/"+testEscrowAddr, nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	var resp EscrowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.AddressShort != "0x1111...1111" {
		t.Errorf("unexpected short address: %s", resp.AddressShort)
	}
	if resp.EscrowURL != "https://etherscan.io/address/"+testEscrowAddr {
		t.Errorf("unexpected escrow URL: %s", resp.EscrowURL)
	}
	if resp.DeployTxURL != "https://etherscan.io/tx/0xaaaa" {
		t.Errorf("unexpected deploy tx URL: %s", resp.DeployTxURL)
	}
	if resp.DurationDisplay != "2 hours" {
		t.Errorf("unexpected duration display: %s", resp.DurationDisplay)
	}
	if resp.StartDate != "Nov 14, 2023" {
		t.Errorf("unexpected start date: %s", resp.StartDate)
	}
	if resp.EndDate != "Nov 15, 2023" {
		t.Errorf("unexpected end date: %s", resp.EndDate)
	}
	if !strings.HasSuffix(resp.ProgressDisplay, "%") {
		t.Errorf("unexpected progress display: %s", resp.ProgressDisplay)
	}
}

func TestGetEscrowDegradesWithoutLiveData(t *testing.T) {
	index := &stubIndex{escrows: []model.IndexedEscrow{testIndexedEscrow()}}
	live := &stubLive{err: errors.New("rpc down")}
	handler := newTestEscrowHandler(index, live, &stubPrices{}, &stubTokenChain{})

	req := httptest.NewRequest("GET", "/api/escrows/"+testEscrowAddr, nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite chain outage, got %d", rec.Code)
	}

	var resp EscrowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Live != nil {
		t.Error("expected no live data when the chain is unreachable")
	}
	if resp.Status == "" {
		t.Error("expected a schedule-derived status without live data")
	}
}

func TestGetEscrowNotFound(t *testing.T) {
	handler := newTestEscrowHandler(&stubIndex{}, &stubLive{}, &stubPrices{}, &stubTokenChain{})

	req := httptest.NewRequest("GET", "/api/escrows/"+testEscrowAddr, nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error != "escrow_not_found" {
		t.Errorf("expected escrow_not_found, got %s", resp.Error)
	}
}

func TestGetEscrowRejectsInvalidAddress(t *testing.T) {
	handler := newTestEscrowHandler(&stubIndex{}, &stubLive{}, &stubPrices{}, &stubTokenChain{})

	req := httptest.NewRequest("GET", "/api/escrows/not-an-address", nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetEscrowRecordsRecentlyViewed(t *testing.T) {
	index := &stubIndex{escrows: []model.IndexedEscrow{testIndexedEscrow()}}
	logger := zap.NewNop()
	store := prefs.NewMemoryStore()
	recent := prefs.NewRecentStore(store, logger)
	handler := NewEscrowHandler(
		index,
		&stubLive{err: errors.New("rpc down")},
		&stubPrices{},
		&stubTokenChain{},
		prefs.NewNameStore(store, logger),
		prefs.NewStarredStore(store, logger),
		recent,
		logger,
	)

	req := httptest.NewRequest("GET", "/api/escrows/"+testEscrowAddr, nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	items := recent.Items()
	if len(items) != 1 || !strings.EqualFold(items[0].Address, testEscrowAddr) {
		t.Fatalf("expected the visit to be recorded, got %v", items)
	}
}

func TestGetEscrowCallerPermissions(t *testing.T) {
	index := &stubIndex{escrows: []model.IndexedEscrow{testIndexedEscrow()}}
	live := &stubLive{data: map[string]*model.LiveEscrowData{
		strings.ToLower(testEscrowAddr): {
			Unclaimed:    big.NewInt(100),
			Locked:       big.NewInt(900),
			TotalClaimed: big.NewInt(0),
			TotalLocked:  big.NewInt(1000),
			Owner:        testFunder,
			DisabledAt:   9_999_999_999,
			EndTime:      9_999_999_999,
			StartTime:    1_700_000_000,
		},
	}}
	handler := newTestEscrowHandler(index, live, &stubPrices{}, &stubTokenChain{})

	req := httptest.NewRequest("GET", "/api/escrows/"+testEscrowAddr+"?caller="+testRecipient, nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	var resp EscrowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Permissions == nil {
		t.Fatal("expected permissions when caller is provided")
	}
	if !resp.Permissions.CanClaim {
		t.Error("recipient with unclaimed balance should be able to claim")
	}
	if !resp.Permissions.IsRecipient || resp.Permissions.IsOwner {
		t.Error("caller should be recipient, not owner")
	}
}

func TestListEscrowsFiltersByParticipant(t *testing.T) {
	other := testIndexedEscrow()
	other.Address = "0x5555555555555555555555555555555555555555"
	other.Recipient = "0x6666666666666666666666666666666666666666"
	other.Funder = "0x7777777777777777777777777777777777777777"

	index := &stubIndex{escrows: []model.IndexedEscrow{testIndexedEscrow(), other}}
	handler := newTestEscrowHandler(index, &stubLive{}, &stubPrices{}, &stubTokenChain{})

	req := httptest.NewRequest("GET", "/api/escrows?participant="+testRecipient, nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp ListEscrowsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("expected 1 escrow for participant, got %d", resp.Count)
	}
	if !strings.EqualFold(resp.Escrows[0].Address, testEscrowAddr) {
		t.Errorf("unexpected escrow in filtered list: %s", resp.Escrows[0].Address)
	}
}

func TestListEscrowsWithLiveJoinsBatch(t *testing.T) {
	index := &stubIndex{escrows: []model.IndexedEscrow{testIndexedEscrow()}}
	live := &stubLive{data: map[string]*model.LiveEscrowData{
		strings.ToLower(testEscrowAddr): {
			Unclaimed:    big.NewInt(0),
			Locked:       big.NewInt(0),
			TotalClaimed: big.NewInt(1000),
			TotalLocked:  big.NewInt(1000),
			Owner:        testFunder,
			DisabledAt:   1_700_010_000,
			EndTime:      1_700_010_000,
			StartTime:    1_700_000_000,
		},
	}}
	handler := newTestEscrowHandler(index, live, &stubPrices{}, &stubTokenChain{})

	req := httptest.NewRequest("GET", "/api/escrows?live=true", nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	var resp ListEscrowsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("expected 1 escrow, got %d", resp.Count)
	}
	if resp.Escrows[0].Live == nil {
		t.Fatal("expected live data with live=true")
	}
	if resp.Escrows[0].Status != string(model.StatusCompleted) {
		t.Errorf("expected completed status from live data, got %s", resp.Escrows[0].Status)
	}
}

func TestListEscrowsWithoutLiveSkipsChain(t *testing.T) {
	index := &stubIndex{escrows: []model.IndexedEscrow{testIndexedEscrow()}}
	handler := newTestEscrowHandler(index, &stubLive{err: errors.New("rpc down")}, &stubPrices{}, &stubTokenChain{})

	req := httptest.NewRequest("GET", "/api/escrows", nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp ListEscrowsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Escrows[0].Live != nil {
		t.Error("expected no live data without live=true")
	}
}

func TestGetEscrowLiveFailsWhenChainUnreachable(t *testing.T) {
	index := &stubIndex{escrows: []model.IndexedEscrow{testIndexedEscrow()}}
	handler := newTestEscrowHandler(index, &stubLive{err: errors.New("rpc down")}, &stubPrices{}, &stubTokenChain{})

	req := httptest.NewRequest("GET", "/api/escrows/"+testEscrowAddr+"/live", nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for explicit live request, got %d", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error != "live_data_unavailable" {
		t.Errorf("expected live_data_unavailable, got %s", resp.Error)
	}
}

func TestGetTokenFallsBackToChain(t *testing.T) {
	logoURL := "https://example.org/logo.png"
	tokenChain := &stubTokenChain{metadata: &model.TokenMetadata{
		Symbol:   "ONCHAIN",
		Name:     "On Chain Token",
		Decimals: 6,
		LogoURL:  &logoURL,
	}}
	handler := newTestEscrowHandler(&stubIndex{}, &stubLive{}, &stubPrices{}, tokenChain)

	req := httptest.NewRequest("GET", "/api/tokens/"+testTokenAddr, nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Metadata.Symbol != "ONCHAIN" {
		t.Errorf("expected chain fallback metadata, got %s", resp.Metadata.Symbol)
	}
}

func TestGetTokenNotFound(t *testing.T) {
	tokenChain := &stubTokenChain{err: errors.New("no contract")}
	handler := newTestEscrowHandler(&stubIndex{}, &stubLive{}, &stubPrices{}, tokenChain)

	req := httptest.NewRequest("GET", "/api/tokens/"+testTokenAddr, nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetTokenIncludesPrice(t *testing.T) {
	index := &stubIndex{tokens: map[string]model.TokenMetadata{
		strings.ToLower(testTokenAddr): {Symbol: "TKN", Name: "Token", Decimals: 18},
	}}
	prices := &stubPrices{prices: map[string]model.TokenPrice{
		strings.ToLower(testTokenAddr): {Price: 1.23, Confidence: 0.99},
	}}
	handler := newTestEscrowHandler(index, &stubLive{}, prices, &stubTokenChain{})

	req := httptest.NewRequest("GET", "/api/tokens/"+testTokenAddr, nil)
	rec := httptest.NewRecorder()
	escrowRouter(handler).ServeHTTP(rec, req)

	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Price == nil || resp.Price.Price != 1.23 {
		t.Error("expected price in token response")
	}
}
