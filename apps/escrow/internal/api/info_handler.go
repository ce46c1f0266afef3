package api

import (
	"net/http"

	"go.uber.org/zap"

	"escrow/apps/escrow/internal/constants"
	"escrow/apps/escrow/internal/format"
)

// InfoHandler serves static deployment information: chain, factory and the
// schedule presets the create flow offers.
type InfoHandler struct {
	factoryAddress string
	logger         *zap.Logger
}

func NewInfoHandler(factoryAddress string, logger *zap.Logger) *InfoHandler {
	return &InfoHandler{factoryAddress: factoryAddress, logger: logger}
}

// InfoResponse describes the deployment environment.
type InfoResponse struct {
	ChainID         int              `json:"chain_id"`
	FactoryAddress  string           `json:"factory_address"`
	FactoryURL      string           `json:"factory_url"`
	DonationBps     int              `json:"donation_bps"`
	DurationPresets []DurationPreset `json:"duration_presets"`
}

// DurationPreset is one selectable vesting length.
type DurationPreset struct {
	Seconds int64  `json:"seconds"`
	Label   string `json:"label"`
}

// GetInfo handles GET /api/info.
func (h *InfoHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	presets := make([]DurationPreset, 0, len(constants.DeployDurationPresets))
	for _, seconds := range constants.DeployDurationPresets {
		presets = append(presets, DurationPreset{
			Seconds: seconds,
			Label:   format.DurationHuman(seconds),
		})
	}

	writeJSONResponse(w, h.logger, http.StatusOK, InfoResponse{
		ChainID:         constants.ChainID,
		FactoryAddress:  h.factoryAddress,
		FactoryURL:      constants.EtherscanAddressURL(h.factoryAddress),
		DonationBps:     constants.DonationBps,
		DurationPresets: presets,
	})
}
