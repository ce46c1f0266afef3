package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"escrow/apps/escrow/internal/model"
	"escrow/apps/escrow/internal/prefs"
)

// PreferenceHandler serves the user's starred escrows, custom names and
// recently-viewed history.
type PreferenceHandler struct {
	starred *prefs.StarredStore
	names   *prefs.NameStore
	recent  *prefs.RecentStore
	logger  *zap.Logger
}

func NewPreferenceHandler(starred *prefs.StarredStore, names *prefs.NameStore, recent *prefs.RecentStore, logger *zap.Logger) *PreferenceHandler {
	return &PreferenceHandler{
		starred: starred,
		names:   names,
		recent:  recent,
		logger:  logger,
	}
}

// SetNameRequest carries a custom escrow label.
type SetNameRequest struct {
	Name string `json:"name"`
}

// AddRecentRequest records a visit to an escrow.
type AddRecentRequest struct {
	Address   string `json:"address"`
	Token     string `json:"token"`
	Recipient string `json:"recipient"`
}

// ToggleStarResponse reports the membership after a toggle.
type ToggleStarResponse struct {
	Address string `json:"address"`
	Starred bool   `json:"starred"`
}

// GetStarred handles GET /api/preferences/starred.
func (h *PreferenceHandler) GetStarred(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"starred": h.starred.All(),
	})
}

// AddStar handles POST /api/preferences/starred/{address}.
func (h *PreferenceHandler) AddStar(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}

	if err := h.starred.Add(address); err != nil {
		h.logger.Error("Failed to star escrow", zap.String("escrow", address), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to persist preference")
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"starred": h.starred.All(),
	})
}

// RemoveStar handles DELETE /api/preferences/starred/{address}.
func (h *PreferenceHandler) RemoveStar(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}

	if err := h.starred.Remove(address); err != nil {
		h.logger.Error("Failed to unstar escrow", zap.String("escrow", address), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to persist preference")
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"starred": h.starred.All(),
	})
}

// ToggleStar handles POST /api/preferences/starred/{address}/toggle.
func (h *PreferenceHandler) ToggleStar(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}

	starred, err := h.starred.Toggle(address)
	if err != nil {
		h.logger.Error("Failed to toggle star", zap.String("escrow", address), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to persist preference")
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, ToggleStarResponse{
		Address: address,
		Starred: starred,
	})
}

// GetNames handles GET /api/preferences/names.
func (h *PreferenceHandler) GetNames(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"names": h.names.All(),
	})
}

// SetName handles PUT /api/preferences/names/{address}. An empty or
// whitespace-only name deletes the entry.
func (h *PreferenceHandler) SetName(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}

	var req SetNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body")
		return
	}

	if err := h.names.Set(address, req.Name); err != nil {
		h.logger.Error("Failed to set escrow name", zap.String("escrow", address), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to persist preference")
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"names": h.names.All(),
	})
}

// RemoveName handles DELETE /api/preferences/names/{address}.
func (h *PreferenceHandler) RemoveName(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}

	if err := h.names.Remove(address); err != nil {
		h.logger.Error("Failed to remove escrow name", zap.String("escrow", address), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to persist preference")
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"names": h.names.All(),
	})
}

// GetRecent handles GET /api/preferences/recent.
func (h *PreferenceHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"recent": h.recent.Items(),
	})
}

// AddRecent handles POST /api/preferences/recent.
func (h *PreferenceHandler) AddRecent(w http.ResponseWriter, r *http.Request) {
	var req AddRecentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body")
		return
	}

	if !common.IsHexAddress(req.Address) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "address must be a valid Ethereum address")
		return
	}

	if err := h.recent.Add(model.RecentlyViewedItem{
		Address:   req.Address,
		Token:     req.Token,
		Recipient: req.Recipient,
	}); err != nil {
		h.logger.Error("Failed to record recently viewed", zap.String("escrow", req.Address), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to persist preference")
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"recent": h.recent.Items(),
	})
}

// ClearRecent handles DELETE /api/preferences/recent.
func (h *PreferenceHandler) ClearRecent(w http.ResponseWriter, r *http.Request) {
	if err := h.recent.Clear(); err != nil {
		h.logger.Error("Failed to clear recently viewed", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to persist preference")
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"recent": h.recent.Items(),
	})
}

func (h *PreferenceHandler) pathAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	address := mux.Vars(r)["address"]
	if !common.IsHexAddress(address) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "address must be a valid Ethereum address")
		return "", false
	}
	return address, true
}
