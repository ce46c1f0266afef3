package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"escrow/apps/escrow/internal/constants"
	"escrow/apps/escrow/internal/event_publisher"
	"escrow/apps/escrow/internal/format"
	"escrow/apps/escrow/internal/model"
	"escrow/apps/escrow/internal/repository"
	"escrow/apps/escrow/internal/vesting"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// TokenBalanceSource reads ERC-20 balances and allowances.
type TokenBalanceSource interface {
	BalanceOf(ctx context.Context, tokenAddress, walletAddress string) (*big.Int, error)
	Allowance(ctx context.Context, tokenAddress, ownerAddress, spenderAddress string) (*big.Int, error)
}

// TransactionHandler builds unsigned transactions and tracks them through
// the signing and confirmation lifecycle. Permission checks run server side
// against live contract state before any payload is built, so the wallet is
// never asked to sign a call that would revert.
type TransactionHandler struct {
	builder   *TransactionBuilder
	index     IndexSource
	live      LiveSource
	balances  TokenBalanceSource
	repo      *repository.TransactionRepository
	publisher *event_publisher.EventPublisher
	logger    *zap.Logger
}

func NewTransactionHandler(builder *TransactionBuilder, index IndexSource, live LiveSource, balances TokenBalanceSource, repo *repository.TransactionRepository, publisher *event_publisher.EventPublisher, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		builder:   builder,
		index:     index,
		live:      live,
		balances:  balances,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateClaim handles POST /api/transactions/claim.
func (h *TransactionHandler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body")
		return
	}

	if !common.IsHexAddress(req.EscrowAddress) || !common.IsHexAddress(req.WalletAddress) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "escrow_address and wallet_address must be valid Ethereum addresses")
		return
	}
	if req.Beneficiary != "" && !common.IsHexAddress(req.Beneficiary) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "beneficiary must be a valid Ethereum address")
		return
	}

	escrow, ok := h.loadEscrowWithLive(ctx, w, req.EscrowAddress)
	if !ok {
		return
	}

	if !vesting.CanClaim(escrow, req.WalletAddress) {
		writeErrorResponse(w, h.logger, http.StatusForbidden, "not_claimable", "Nothing to claim, or the caller is not allowed to claim from this escrow")
		return
	}

	beneficiary := req.Beneficiary
	if beneficiary == "" {
		beneficiary = escrow.Recipient
	}

	unsigned, err := h.builder.BuildClaim(ctx, escrow.Address, beneficiary, req.WalletAddress)
	if err != nil {
		h.logger.Error("Failed to build claim transaction", zap.String("escrow", escrow.Address), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "build_failed", "Failed to build unsigned transaction")
		return
	}

	h.track(w, model.TxActionClaim, escrow.Address, req.WalletAddress, unsigned)
}

// CreateRevoke handles POST /api/transactions/revoke.
func (h *TransactionHandler) CreateRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body")
		return
	}

	if !common.IsHexAddress(req.EscrowAddress) || !common.IsHexAddress(req.WalletAddress) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "escrow_address and wallet_address must be valid Ethereum addresses")
		return
	}

	escrow, ok := h.loadEscrowWithLive(ctx, w, req.EscrowAddress)
	if !ok {
		return
	}

	if !vesting.CanRevoke(escrow, req.WalletAddress, time.Now().Unix()) {
		writeErrorResponse(w, h.logger, http.StatusForbidden, "not_revocable", "Only the owner may revoke, and only while tokens remain locked")
		return
	}

	unsigned, err := h.builder.BuildRevoke(ctx, escrow.Address, req.WalletAddress)
	if err != nil {
		h.logger.Error("Failed to build revoke transaction", zap.String("escrow", escrow.Address), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "build_failed", "Failed to build unsigned transaction")
		return
	}

	h.track(w, model.TxActionRevoke, escrow.Address, req.WalletAddress, unsigned)
}

// CreateDisown handles POST /api/transactions/disown.
func (h *TransactionHandler) CreateDisown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DisownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body")
		return
	}

	if !common.IsHexAddress(req.EscrowAddress) || !common.IsHexAddress(req.WalletAddress) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "escrow_address and wallet_address must be valid Ethereum addresses")
		return
	}

	escrow, ok := h.loadEscrowWithLive(ctx, w, req.EscrowAddress)
	if !ok {
		return
	}

	if !vesting.CanDisown(escrow, req.WalletAddress) {
		writeErrorResponse(w, h.logger, http.StatusForbidden, "not_disownable", "Only the current owner may disown this escrow")
		return
	}

	unsigned, err := h.builder.BuildDisown(ctx, escrow.Address, req.WalletAddress)
	if err != nil {
		h.logger.Error("Failed to build disown transaction", zap.String("escrow", escrow.Address), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "build_failed", "Failed to build unsigned transaction")
		return
	}

	h.track(w, model.TxActionDisown, escrow.Address, req.WalletAddress, unsigned)
}

// CreateApprove handles POST /api/transactions/approve. The approval always
// targets the factory; arbitrary spenders are not built here.
func (h *TransactionHandler) CreateApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body")
		return
	}

	if !common.IsHexAddress(req.TokenAddress) || !common.IsHexAddress(req.WalletAddress) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "token_address and wallet_address must be valid Ethereum addresses")
		return
	}

	amount, ok := parsePositiveAmount(req.Amount)
	if !ok {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_amount", "amount must be a positive base-unit integer")
		return
	}

	unsigned, err := h.builder.BuildApprove(ctx, req.TokenAddress, req.WalletAddress, amount)
	if err != nil {
		h.logger.Error("Failed to build approve transaction", zap.String("token", req.TokenAddress), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "build_failed", "Failed to build unsigned transaction")
		return
	}

	h.track(w, model.TxActionApprove, req.TokenAddress, req.WalletAddress, unsigned)
}

// CreateDeploy handles POST /api/transactions/deploy. Balance and allowance
// are checked up front so the funder learns about a missing approval before
// signing, not from a revert.
func (h *TransactionHandler) CreateDeploy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body")
		return
	}

	if !common.IsHexAddress(req.TokenAddress) || !common.IsHexAddress(req.Recipient) || !common.IsHexAddress(req.WalletAddress) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", "token_address, recipient and wallet_address must be valid Ethereum addresses")
		return
	}

	amount, ok := parsePositiveAmount(req.Amount)
	if !ok {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_amount", "amount must be a positive base-unit integer")
		return
	}

	if req.VestingDuration <= 0 {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_duration", "vesting_duration must be positive")
		return
	}
	if req.CliffLength < 0 || req.CliffLength > req.VestingDuration {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_cliff", "cliff_length must be between 0 and vesting_duration")
		return
	}

	balance, err := h.balances.BalanceOf(ctx, req.TokenAddress, req.WalletAddress)
	if err != nil {
		h.logger.Error("Balance check failed", zap.String("token", req.TokenAddress), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "balance_check_failed", "Failed to read token balance")
		return
	}
	if balance.Cmp(amount) < 0 {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "insufficient_balance", "Wallet does not hold enough tokens to fund this escrow")
		return
	}

	allowance, err := h.balances.Allowance(ctx, req.TokenAddress, req.WalletAddress, constants.FactoryAddress)
	if err != nil {
		h.logger.Error("Allowance check failed", zap.String("token", req.TokenAddress), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "allowance_check_failed", "Failed to read token allowance")
		return
	}
	if allowance.Cmp(amount) < 0 {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "insufficient_allowance", "Approve the factory for at least the funding amount first")
		return
	}

	unsigned, err := h.builder.BuildDeploy(ctx, req, amount)
	if err != nil {
		h.logger.Error("Failed to build deploy transaction", zap.String("token", req.TokenAddress), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "build_failed", "Failed to build unsigned transaction")
		return
	}

	h.track(w, model.TxActionDeploy, constants.FactoryAddress, req.WalletAddress, unsigned)
}

// GetTransaction handles GET /api/transactions/{tx_id}.
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.loadTransaction(w, r)
	if !ok {
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, toTransactionResponse(tx))
}

// MarkSubmitted handles POST /api/transactions/{tx_id}/submitted. The wallet
// reports the broadcast hash; the record moves to pending and the receipt
// watcher takes over.
func (h *TransactionHandler) MarkSubmitted(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.loadTransaction(w, r)
	if !ok {
		return
	}

	var req SubmittedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body")
		return
	}

	if !txHashPattern.MatchString(req.TxHash) {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_tx_hash", "tx_hash must be a 32-byte hex string")
		return
	}

	if tx.Status != model.TxStatusCreated && tx.Status != model.TxStatusRejected {
		writeErrorResponse(w, h.logger, http.StatusConflict, "invalid_state", "Transaction was already submitted")
		return
	}

	if err := h.repo.AttachTxHash(tx.ID, req.TxHash); err != nil {
		h.logger.Error("Failed to attach tx hash", zap.String("tx_id", tx.ID), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to update transaction")
		return
	}

	tx.TxHash = &req.TxHash
	tx.Status = model.TxStatusPending

	if h.publisher != nil {
		if err := h.publisher.PublishStatusChange(*tx, model.TxStatusPending); err != nil {
			h.logger.Error("Failed to publish transaction event", zap.String("tx_id", tx.ID), zap.Error(err))
		}
	}

	writeJSONResponse(w, h.logger, http.StatusOK, toTransactionResponse(tx))
}

// MarkRejected handles POST /api/transactions/{tx_id}/rejected. A rejected
// transaction stays retryable: the client may rebuild or resubmit it.
func (h *TransactionHandler) MarkRejected(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.loadTransaction(w, r)
	if !ok {
		return
	}

	if tx.Status != model.TxStatusCreated {
		writeErrorResponse(w, h.logger, http.StatusConflict, "invalid_state", "Only an unsubmitted transaction can be rejected")
		return
	}

	if err := h.repo.UpdateStatus(tx.ID, model.TxStatusRejected); err != nil {
		h.logger.Error("Failed to mark transaction rejected", zap.String("tx_id", tx.ID), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to update transaction")
		return
	}

	tx.Status = model.TxStatusRejected
	writeJSONResponse(w, h.logger, http.StatusOK, toTransactionResponse(tx))
}

// loadEscrowWithLive resolves an escrow from the index and joins live
// contract state. Claim, revoke and disown checks all need live data; an
// unreadable contract is an error here, not a degradation.
func (h *TransactionHandler) loadEscrowWithLive(ctx context.Context, w http.ResponseWriter, address string) (*model.Escrow, bool) {
	indexed, err := h.index.EscrowByAddress(ctx, address)
	if err != nil {
		h.logger.Error("Failed to load escrow index", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "index_unavailable", "Failed to load escrow index")
		return nil, false
	}
	if indexed == nil {
		writeErrorResponse(w, h.logger, http.StatusNotFound, "escrow_not_found", "No escrow at this address")
		return nil, false
	}

	live, err := h.live.FetchLive(ctx, indexed.Address)
	if err != nil {
		h.logger.Error("Live escrow read failed", zap.String("escrow", indexed.Address), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadGateway, "live_data_unavailable", "Failed to read escrow contract state")
		return nil, false
	}

	return vesting.Merge(*indexed, live, time.Now().Unix()), true
}

func (h *TransactionHandler) loadTransaction(w http.ResponseWriter, r *http.Request) (*model.TrackedTransaction, bool) {
	txID := mux.Vars(r)["tx_id"]
	if _, err := uuid.Parse(txID); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_transaction_id", "tx_id must be a UUID")
		return nil, false
	}

	tx, err := h.repo.GetByID(txID)
	if err != nil {
		h.logger.Error("Failed to load tracked transaction", zap.String("tx_id", txID), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to load transaction")
		return nil, false
	}
	if tx == nil {
		writeErrorResponse(w, h.logger, http.StatusNotFound, "transaction_not_found", "No tracked transaction with this id")
		return nil, false
	}

	return tx, true
}

// track persists a freshly built transaction and returns it to the client.
func (h *TransactionHandler) track(w http.ResponseWriter, action, escrowAddress, walletAddress string, unsigned *UnsignedTransaction) {
	payload, err := json.Marshal(unsigned)
	if err != nil {
		h.logger.Error("Failed to marshal unsigned transaction", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to persist transaction")
		return
	}

	now := time.Now()
	tx := model.TrackedTransaction{
		ID:              uuid.New().String(),
		Action:          action,
		EscrowAddress:   escrowAddress,
		WalletAddress:   walletAddress,
		Status:          model.TxStatusCreated,
		UnsignedPayload: string(payload),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.repo.InsertTransaction(tx); err != nil {
		h.logger.Error("Failed to insert tracked transaction", zap.String("tx_id", tx.ID), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to persist transaction")
		return
	}

	writeJSONResponse(w, h.logger, http.StatusCreated, toTransactionResponse(&tx))
}

func toTransactionResponse(tx *model.TrackedTransaction) TransactionResponse {
	resp := TransactionResponse{
		TransactionID:       tx.ID,
		Action:              tx.Action,
		EscrowAddress:       tx.EscrowAddress,
		WalletAddress:       tx.WalletAddress,
		TxHash:              tx.TxHash,
		Status:              tx.Status,
		UnsignedTransaction: json.RawMessage(tx.UnsignedPayload),
		CreatedAt:           tx.CreatedAt,
		CreatedAtDisplay:    format.DateTime(tx.CreatedAt.Unix()),
		UpdatedAt:           tx.UpdatedAt,
		UpdatedAgo:          format.TimeAgo(tx.UpdatedAt, time.Now()),
	}

	if tx.TxHash != nil {
		url := constants.EtherscanTxURL(*tx.TxHash)
		resp.TxURL = &url
	}

	return resp
}

// parsePositiveAmount parses a decimal base-unit amount. Zero and negative
// amounts are rejected.
func parsePositiveAmount(raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}
