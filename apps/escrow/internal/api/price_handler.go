package api

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// PriceHandler serves USD spot prices for token addresses.
type PriceHandler struct {
	prices PriceSource
	logger *zap.Logger
}

func NewPriceHandler(prices PriceSource, logger *zap.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logger}
}

// GetPrices handles GET /api/prices?tokens=0x...,0x... Tokens the feed does
// not know are absent from the result rather than errors.
func (h *PriceHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tokens")
	if raw == "" {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "missing_tokens", "tokens query parameter is required")
		return
	}

	tokens := strings.Split(raw, ",")
	for _, token := range tokens {
		if !common.IsHexAddress(token) {
			writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "tokens must be valid Ethereum addresses")
			return
		}
	}

	prices, err := h.prices.Prices(r.Context(), tokens)
	if err != nil {
		h.logger.Error("Price fetch failed", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "price_fetch_failed", "Failed to fetch token prices")
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"prices": prices,
	})
}
