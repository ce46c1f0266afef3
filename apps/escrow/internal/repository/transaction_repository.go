package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"escrow/apps/escrow/internal/model"
)

type TransactionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTransactionRepository(db *sql.DB, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, logger: logger}
}

func (r *TransactionRepository) InsertTransaction(tx model.TrackedTransaction) error {
	_, err := r.db.Exec(`
		INSERT INTO tracked_transactions (tx_id, action, escrow_address, wallet_address, tx_hash, status, unsigned_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, tx.ID, tx.Action, tx.EscrowAddress, tx.WalletAddress, tx.TxHash, tx.Status, tx.UnsignedPayload)

	if err != nil {
		return fmt.Errorf("failed to insert tracked transaction: %w", err)
	}

	r.logger.Info("Inserted tracked transaction",
		zap.String("tx_id", tx.ID),
		zap.String("action", tx.Action),
		zap.String("escrow_address", tx.EscrowAddress),
		zap.String("wallet_address", tx.WalletAddress))
	return nil
}

func (r *TransactionRepository) GetByID(txID string) (*model.TrackedTransaction, error) {
	var tx model.TrackedTransaction
	err := r.db.QueryRow(`
		SELECT tx_id, action, escrow_address, wallet_address, tx_hash, status, unsigned_payload, created_at, updated_at
		FROM tracked_transactions
		WHERE tx_id = $1
	`, txID).Scan(&tx.ID, &tx.Action, &tx.EscrowAddress, &tx.WalletAddress, &tx.TxHash, &tx.Status, &tx.UnsignedPayload, &tx.CreatedAt, &tx.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tracked transaction: %w", err)
	}

	return &tx, nil
}

// UpdateStatus moves a transaction to a new lifecycle state.
func (r *TransactionRepository) UpdateStatus(txID, status string) error {
	_, err := r.db.Exec(`
		UPDATE tracked_transactions SET status = $2, updated_at = NOW() WHERE tx_id = $1
	`, txID, status)

	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	r.logger.Info("Updated transaction status",
		zap.String("tx_id", txID),
		zap.String("status", status))
	return nil
}

// AttachTxHash records the hash reported by the wallet and marks the
// transaction pending.
func (r *TransactionRepository) AttachTxHash(txID, txHash string) error {
	_, err := r.db.Exec(`
		UPDATE tracked_transactions SET tx_hash = $2, status = $3, updated_at = NOW() WHERE tx_id = $1
	`, txID, txHash, model.TxStatusPending)

	if err != nil {
		return fmt.Errorf("failed to attach tx hash: %w", err)
	}

	r.logger.Info("Attached transaction hash",
		zap.String("tx_id", txID),
		zap.String("tx_hash", txHash))
	return nil
}

// ListWatchable returns transactions awaiting receipt confirmation.
func (r *TransactionRepository) ListWatchable() ([]model.TrackedTransaction, error) {
	rows, err := r.db.Query(`
		SELECT tx_id, action, escrow_address, wallet_address, tx_hash, status, unsigned_payload, created_at, updated_at
		FROM tracked_transactions
		WHERE status IN ($1, $2) AND tx_hash IS NOT NULL
		ORDER BY created_at
	`, model.TxStatusPending, model.TxStatusConfirming)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchable transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.TrackedTransaction
	for rows.Next() {
		var tx model.TrackedTransaction
		if err := rows.Scan(&tx.ID, &tx.Action, &tx.EscrowAddress, &tx.WalletAddress, &tx.TxHash, &tx.Status, &tx.UnsignedPayload, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracked transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}
