package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"escrow/apps/escrow/internal/model"
)

// EscrowResponse is the merged escrow view served to the UI: the indexed
// record, live contract state when available, and the derived display
// figures.
type EscrowResponse struct {
	Address         string               `json:"address"`
	AddressShort    string               `json:"address_short"`
	EscrowURL       string               `json:"escrow_url"`
	Funder          string               `json:"funder"`
	Token           string               `json:"token"`
	Recipient       string               `json:"recipient"`
	Amount          string               `json:"amount"`
	VestingStart    int64                `json:"vesting_start"`
	VestingDuration int64                `json:"vesting_duration"`
	DurationDisplay string               `json:"duration_display"`
	StartDate       string               `json:"start_date"`
	EndDate         string               `json:"end_date"`
	CliffLength     int64                `json:"cliff_length"`
	OpenClaim       bool                 `json:"open_claim"`
	BlockNumber     uint64               `json:"block_number"`
	TxHash          string               `json:"tx_hash"`
	DeployTxURL     string               `json:"deploy_tx_url,omitempty"`
	Status          string               `json:"status"`
	Progress        float64              `json:"progress"`
	ProgressDisplay string               `json:"progress_display"`
	Breakdown       BreakdownResponse    `json:"breakdown"`
	Milestone       MilestoneResponse    `json:"milestone"`
	Live            *LiveResponse        `json:"live,omitempty"`
	TokenMetadata   *model.TokenMetadata `json:"token_metadata,omitempty"`
	Name            string               `json:"name,omitempty"`
	Starred         bool                 `json:"starred"`
	ValueUSD        *float64             `json:"value_usd,omitempty"`
	ValueUSDDisplay string               `json:"value_usd_display,omitempty"`
	Permissions     *PermissionsResponse `json:"permissions,omitempty"`
}

// BreakdownResponse carries base-unit integer amounts as decimal strings.
// claimed+claimable+locked may differ from total when the contract keeps
// independent accounting.
type BreakdownResponse struct {
	Claimed   string            `json:"claimed"`
	Claimable string            `json:"claimable"`
	Locked    string            `json:"locked"`
	Total     string            `json:"total"`
	Display   *BreakdownDisplay `json:"display,omitempty"`
}

// BreakdownDisplay is the breakdown rescaled by token decimals, only
// present when token metadata is known.
type BreakdownDisplay struct {
	Claimed   string `json:"claimed"`
	Claimable string `json:"claimable"`
	Locked    string `json:"locked"`
	Total     string `json:"total"`
}

// MilestoneResponse names the next schedule boundary and the time to it.
type MilestoneResponse struct {
	Milestone string `json:"milestone"`
	Seconds   int64  `json:"seconds"`
	Display   string `json:"display,omitempty"`
}

// LiveResponse mirrors the contract-reported state.
type LiveResponse struct {
	Unclaimed    string `json:"unclaimed"`
	Locked       string `json:"locked"`
	TotalClaimed string `json:"total_claimed"`
	TotalLocked  string `json:"total_locked"`
	Owner        string `json:"owner"`
	DisabledAt   int64  `json:"disabled_at"`
	EndTime      int64  `json:"end_time"`
	StartTime    int64  `json:"start_time"`
	CliffLength  int64  `json:"cliff_length"`
	OpenClaim    bool   `json:"open_claim"`
}

// PermissionsResponse reports what the caller address may do.
type PermissionsResponse struct {
	CanClaim    bool `json:"can_claim"`
	CanRevoke   bool `json:"can_revoke"`
	CanDisown   bool `json:"can_disown"`
	IsOwner     bool `json:"is_owner"`
	IsRecipient bool `json:"is_recipient"`
}

// ListEscrowsResponse wraps the escrow list.
type ListEscrowsResponse struct {
	Escrows []EscrowResponse `json:"escrows"`
	Count   int              `json:"count"`
}

// TokenResponse is token metadata plus an optional spot price.
type TokenResponse struct {
	Address  string              `json:"address"`
	Metadata model.TokenMetadata `json:"metadata"`
	Price    *model.TokenPrice   `json:"price,omitempty"`
}

// ClaimRequest asks for an unsigned claim transaction. Beneficiary defaults
// to the escrow recipient.
type ClaimRequest struct {
	EscrowAddress string `json:"escrow_address"`
	Beneficiary   string `json:"beneficiary,omitempty"`
	WalletAddress string `json:"wallet_address"`
}

// RevokeRequest asks for an unsigned immediate revoke.
type RevokeRequest struct {
	EscrowAddress string `json:"escrow_address"`
	WalletAddress string `json:"wallet_address"`
}

// DisownRequest asks for an unsigned disown.
type DisownRequest struct {
	EscrowAddress string `json:"escrow_address"`
	WalletAddress string `json:"wallet_address"`
}

// ApproveRequest asks for an unsigned ERC-20 approval of the factory.
type ApproveRequest struct {
	TokenAddress  string `json:"token_address"`
	WalletAddress string `json:"wallet_address"`
	Amount        string `json:"amount"`
}

// DeployRequest asks for an unsigned factory deployment of a new escrow.
type DeployRequest struct {
	TokenAddress    string `json:"token_address"`
	Recipient       string `json:"recipient"`
	WalletAddress   string `json:"wallet_address"`
	Amount          string `json:"amount"`
	VestingDuration int64  `json:"vesting_duration"`
	VestingStart    int64  `json:"vesting_start"`
	CliffLength     int64  `json:"cliff_length"`
	OpenClaim       bool   `json:"open_claim"`
	SupportDonation bool   `json:"support_donation"`
}

// SubmittedRequest reports the hash the wallet broadcast.
type SubmittedRequest struct {
	TxHash string `json:"tx_hash"`
}

// TransactionResponse is the tracked transaction state together with the
// unsigned payload for the wallet to sign.
type TransactionResponse struct {
	TransactionID       string          `json:"transaction_id"`
	Action              string          `json:"action"`
	EscrowAddress       string          `json:"escrow_address"`
	WalletAddress       string          `json:"wallet_address"`
	TxHash              *string         `json:"tx_hash,omitempty"`
	TxURL               *string         `json:"tx_url,omitempty"`
	Status              string          `json:"status"`
	UnsignedTransaction json.RawMessage `json:"unsigned_transaction"`
	CreatedAt           time.Time       `json:"created_at"`
	CreatedAtDisplay    string          `json:"created_at_display"`
	UpdatedAt           time.Time       `json:"updated_at"`
	UpdatedAgo          string          `json:"updated_ago"`
}

// UnsignedTransaction represents the unsigned Ethereum transaction data
type UnsignedTransaction struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasLimit string `json:"gas_limit"`
	GasPrice string `json:"gas_price"`
	ChainID  string `json:"chain_id"`
	Nonce    string `json:"nonce"`
}

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSONResponse writes a JSON response with the specified status code
func writeJSONResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func writeErrorResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	writeJSONResponse(w, logger, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
