package api

import (
	"context"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"escrow/apps/escrow/internal/constants"
	"escrow/apps/escrow/internal/format"
	"escrow/apps/escrow/internal/model"
	"escrow/apps/escrow/internal/prefs"
	"escrow/apps/escrow/internal/vesting"
)

// IndexSource serves the static escrow and token indexes.
type IndexSource interface {
	Escrows(ctx context.Context) (*model.EscrowsIndex, error)
	EscrowByAddress(ctx context.Context, address string) (*model.IndexedEscrow, error)
	EscrowsByParticipant(ctx context.Context, address string) ([]model.IndexedEscrow, error)
	TokenMetadata(ctx context.Context, tokenAddress string) (*model.TokenMetadata, error)
}

// LiveSource reads current contract state from the chain.
type LiveSource interface {
	FetchLive(ctx context.Context, escrowAddress string) (*model.LiveEscrowData, error)
	FetchLiveBatch(ctx context.Context, escrowAddresses []string) map[string]*model.LiveEscrowData
}

// PriceSource serves USD token prices.
type PriceSource interface {
	Prices(ctx context.Context, tokenAddresses []string) (map[string]model.TokenPrice, error)
	Price(ctx context.Context, tokenAddress string) (*model.TokenPrice, error)
}

// TokenChainSource reads token metadata straight from the contract, used as
// a fallback when the token index has no entry.
type TokenChainSource interface {
	TokenMetadata(ctx context.Context, tokenAddress string) (*model.TokenMetadata, error)
}

// EscrowHandler serves the merged escrow views: indexed records joined with
// live contract state, token metadata, prices and the user's preferences.
type EscrowHandler struct {
	index      IndexSource
	live       LiveSource
	prices     PriceSource
	tokenChain TokenChainSource
	names      *prefs.NameStore
	starred    *prefs.StarredStore
	recent     *prefs.RecentStore
	logger     *zap.Logger
}

func NewEscrowHandler(index IndexSource, live LiveSource, prices PriceSource, tokenChain TokenChainSource, names *prefs.NameStore, starred *prefs.StarredStore, recent *prefs.RecentStore, logger *zap.Logger) *EscrowHandler {
	return &EscrowHandler{
		index:      index,
		live:       live,
		prices:     prices,
		tokenChain: tokenChain,
		names:      names,
		starred:    starred,
		recent:     recent,
		logger:     logger,
	}
}

// ListEscrows handles GET /api/escrows. Optional query parameters:
// participant filters to escrows where the address is recipient or funder,
// live=true joins live contract state, caller adds permission flags.
func (h *EscrowHandler) ListEscrows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	participant := query.Get("participant")
	if participant != "" && !common.IsHexAddress(participant) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "participant must be a valid Ethereum address")
		return
	}

	caller := query.Get("caller")
	if caller != "" && !common.IsHexAddress(caller) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "caller must be a valid Ethereum address")
		return
	}

	var escrows []model.IndexedEscrow
	var err error
	if participant != "" {
		escrows, err = h.index.EscrowsByParticipant(ctx, participant)
	} else {
		var idx *model.EscrowsIndex
		idx, err = h.index.Escrows(ctx)
		if idx != nil {
			escrows = idx.Escrows
		}
	}
	if err != nil {
		h.logger.Error("Failed to load escrow index", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "index_unavailable", "Failed to load escrow index")
		return
	}

	liveData := map[string]*model.LiveEscrowData{}
	if query.Get("live") == "true" && len(escrows) > 0 {
		addresses := make([]string, len(escrows))
		for i, escrow := range escrows {
			addresses[i] = escrow.Address
		}
		liveData = h.live.FetchLiveBatch(ctx, addresses)
	}

	prices := h.lookupPrices(ctx, escrows)

	now := time.Now().Unix()
	responses := make([]EscrowResponse, 0, len(escrows))
	for _, indexed := range escrows {
		live := liveData[strings.ToLower(indexed.Address)]
		merged := vesting.Merge(indexed, live, now)
		metadata := h.lookupMetadata(ctx, indexed.Token, false)

		var price *model.TokenPrice
		if p, ok := prices[strings.ToLower(indexed.Token)]; ok {
			price = &p
		}

		responses = append(responses, h.buildEscrowResponse(merged, metadata, price, caller, now))
	}

	writeJSONResponse(w, h.logger, http.StatusOK, ListEscrowsResponse{
		Escrows: responses,
		Count:   len(responses),
	})
}

// GetEscrow handles GET /api/escrows/{address}. Live data is joined on a
// best-effort basis; a chain outage degrades to the indexed schedule.
func (h *EscrowHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	address := mux.Vars(r)["address"]
	if !common.IsHexAddress(address) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "address must be a valid Ethereum address")
		return
	}

	caller := r.URL.Query().Get("caller")
	if caller != "" && !common.IsHexAddress(caller) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "caller must be a valid Ethereum address")
		return
	}

	indexed, err := h.index.EscrowByAddress(ctx, address)
	if err != nil {
		h.logger.Error("Failed to load escrow index", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "index_unavailable", "Failed to load escrow index")
		return
	}
	if indexed == nil {
		writeErrorResponse(w, h.logger, http.StatusNotFound, "escrow_not_found", "No escrow at this address")
		return
	}

	live, err := h.live.FetchLive(ctx, indexed.Address)
	if err != nil {
		h.logger.Warn("Live escrow read failed, serving indexed data only",
			zap.String("escrow", indexed.Address),
			zap.Error(err))
		live = nil
	}

	now := time.Now().Unix()
	merged := vesting.Merge(*indexed, live, now)
	metadata := h.lookupMetadata(ctx, indexed.Token, true)

	price, err := h.prices.Price(ctx, indexed.Token)
	if err != nil {
		h.logger.Warn("Price lookup failed", zap.String("token", indexed.Token), zap.Error(err))
		price = nil
	}

	if err := h.recent.Add(model.RecentlyViewedItem{
		Address:   indexed.Address,
		Token:     indexed.Token,
		Recipient: indexed.Recipient,
	}); err != nil {
		h.logger.Warn("Failed to record recently viewed", zap.Error(err))
	}

	writeJSONResponse(w, h.logger, http.StatusOK, h.buildEscrowResponse(merged, metadata, price, caller, now))
}

// GetEscrowLive handles GET /api/escrows/{address}/live. Unlike GetEscrow
// this endpoint does not degrade: the caller explicitly asked for fresh
// contract state.
func (h *EscrowHandler) GetEscrowLive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	address := mux.Vars(r)["address"]
	if !common.IsHexAddress(address) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "address must be a valid Ethereum address")
		return
	}

	indexed, err := h.index.EscrowByAddress(ctx, address)
	if err != nil {
		h.logger.Error("Failed to load escrow index", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "index_unavailable", "Failed to load escrow index")
		return
	}
	if indexed == nil {
		writeErrorResponse(w, h.logger, http.StatusNotFound, "escrow_not_found", "No escrow at this address")
		return
	}

	live, err := h.live.FetchLive(ctx, indexed.Address)
	if err != nil {
		h.logger.Error("Live escrow read failed",
			zap.String("escrow", indexed.Address),
			zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "live_data_unavailable", "Failed to read escrow contract state")
		return
	}

	now := time.Now().Unix()
	merged := vesting.Merge(*indexed, live, now)
	metadata := h.lookupMetadata(ctx, indexed.Token, false)
	caller := r.URL.Query().Get("caller")

	writeJSONResponse(w, h.logger, http.StatusOK, h.buildEscrowResponse(merged, metadata, nil, caller, now))
}

// GetToken handles GET /api/tokens/{address}.
func (h *EscrowHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	address := mux.Vars(r)["address"]
	if !common.IsHexAddress(address) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "address must be a valid Ethereum address")
		return
	}

	metadata := h.lookupMetadata(ctx, address, true)
	if metadata == nil {
		writeErrorResponse(w, h.logger, http.StatusNotFound, "token_not_found", "Token metadata unavailable")
		return
	}

	price, err := h.prices.Price(ctx, address)
	if err != nil {
		h.logger.Warn("Price lookup failed", zap.String("token", address), zap.Error(err))
		price = nil
	}

	writeJSONResponse(w, h.logger, http.StatusOK, TokenResponse{
		Address:  address,
		Metadata: *metadata,
		Price:    price,
	})
}

// lookupMetadata checks the token index first and optionally falls back to
// reading the contract.
func (h *EscrowHandler) lookupMetadata(ctx context.Context, tokenAddress string, chainFallback bool) *model.TokenMetadata {
	metadata, err := h.index.TokenMetadata(ctx, tokenAddress)
	if err != nil {
		h.logger.Warn("Token index lookup failed", zap.String("token", tokenAddress), zap.Error(err))
	}
	if metadata != nil {
		return metadata
	}

	if !chainFallback {
		return nil
	}

	metadata, err = h.tokenChain.TokenMetadata(ctx, tokenAddress)
	if err != nil {
		h.logger.Warn("Token contract read failed", zap.String("token", tokenAddress), zap.Error(err))
		return nil
	}
	return metadata
}

// lookupPrices fetches prices for all distinct tokens in a list of escrows.
// Failures degrade to no prices.
func (h *EscrowHandler) lookupPrices(ctx context.Context, escrows []model.IndexedEscrow) map[string]model.TokenPrice {
	if len(escrows) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(escrows))
	for _, escrow := range escrows {
		tokens = append(tokens, escrow.Token)
	}

	prices, err := h.prices.Prices(ctx, tokens)
	if err != nil {
		h.logger.Warn("Price fetch failed for escrow list", zap.Error(err))
		return nil
	}
	return prices
}

func (h *EscrowHandler) buildEscrowResponse(e *model.Escrow, metadata *model.TokenMetadata, price *model.TokenPrice, caller string, now int64) EscrowResponse {
	breakdown := vesting.AmountsBreakdown(e, now)
	eta := vesting.TimeToMilestone(e, now)
	progress := vesting.Progress(e, now)

	resp := EscrowResponse{
		Address:         e.Address,
		AddressShort:    format.ShortAddress(e.Address),
		EscrowURL:       constants.EtherscanAddressURL(e.Address),
		Funder:          e.Funder,
		Token:           e.Token,
		Recipient:       e.Recipient,
		Amount:          e.Amount,
		VestingStart:    e.VestingStart,
		VestingDuration: e.VestingDuration,
		DurationDisplay: format.DurationHuman(e.VestingDuration),
		StartDate:       format.Date(e.VestingStart),
		EndDate:         format.Date(e.VestingStart + e.VestingDuration),
		CliffLength:     e.CliffLength,
		OpenClaim:       e.OpenClaim,
		BlockNumber:     e.BlockNumber,
		TxHash:          e.TxHash,
		Status:          string(e.Status),
		Progress:        progress,
		ProgressDisplay: format.Percent(progress),
		Breakdown: BreakdownResponse{
			Claimed:   breakdown.Claimed.String(),
			Claimable: breakdown.Claimable.String(),
			Locked:    breakdown.Locked.String(),
			Total:     breakdown.Total.String(),
		},
		Milestone: MilestoneResponse{
			Milestone: string(eta.Milestone),
			Seconds:   eta.Seconds,
		},
		TokenMetadata: metadata,
		Starred:       h.starred.IsStarred(e.Address),
	}

	if e.TxHash != "" {
		resp.DeployTxURL = constants.EtherscanTxURL(e.TxHash)
	}
	if eta.Seconds > 0 {
		resp.Milestone.Display = format.Duration(eta.Seconds)
	}

	if name, ok := h.names.Get(e.Address); ok {
		resp.Name = name
	}

	if metadata != nil {
		resp.Breakdown.Display = &BreakdownDisplay{
			Claimed:   format.TokenAmount(breakdown.Claimed, metadata.Decimals),
			Claimable: format.TokenAmount(breakdown.Claimable, metadata.Decimals),
			Locked:    format.TokenAmount(breakdown.Locked, metadata.Decimals),
			Total:     format.TokenAmount(breakdown.Total, metadata.Decimals),
		}
	}

	if e.Live != nil {
		resp.Live = &LiveResponse{
			Unclaimed:    e.Live.Unclaimed.String(),
			Locked:       e.Live.Locked.String(),
			TotalClaimed: e.Live.TotalClaimed.String(),
			TotalLocked:  e.Live.TotalLocked.String(),
			Owner:        e.Live.Owner,
			DisabledAt:   e.Live.DisabledAt,
			EndTime:      e.Live.EndTime,
			StartTime:    e.Live.StartTime,
			CliffLength:  e.Live.CliffLength,
			OpenClaim:    e.Live.OpenClaim,
		}
	}

	if price != nil && metadata != nil {
		resp.ValueUSD = totalValueUSD(breakdown.Total, metadata.Decimals, price.Price)
		if resp.ValueUSD != nil {
			resp.ValueUSDDisplay = format.USD(*resp.ValueUSD)
		}
	}

	if caller != "" {
		resp.Permissions = &PermissionsResponse{
			CanClaim:    vesting.CanClaim(e, caller),
			CanRevoke:   vesting.CanRevoke(e, caller, now),
			CanDisown:   vesting.CanDisown(e, caller),
			IsOwner:     vesting.IsOwner(e, caller),
			IsRecipient: vesting.IsRecipient(e, caller),
		}
	}

	return resp
}

// totalValueUSD is a display figure only; float rounding here never feeds
// back into any on-chain amount.
func totalValueUSD(total *big.Int, decimals int, price float64) *float64 {
	if total == nil {
		return nil
	}

	value := new(big.Float).SetInt(total)
	if decimals > 0 {
		divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		value.Quo(value, divisor)
	}
	value.Mul(value, big.NewFloat(price))

	result, _ := value.Float64()
	return &result
}
