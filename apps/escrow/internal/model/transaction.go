package model

import (
	"time"
)

// Transaction lifecycle states. A transaction starts as "created" when the
// unsigned payload is built, becomes "pending" once the wallet reports a
// hash, "confirming" when the node knows the transaction, and ends in
// "confirmed" or "failed" from the receipt. "rejected" means the user
// declined the signature prompt; the record stays retryable.
const (
	TxStatusCreated    = "created"
	TxStatusPending    = "pending"
	TxStatusConfirming = "confirming"
	TxStatusConfirmed  = "confirmed"
	TxStatusFailed     = "failed"
	TxStatusRejected   = "rejected"
)

// Transaction actions.
const (
	TxActionClaim   = "claim"
	TxActionRevoke  = "revoke"
	TxActionDisown  = "disown"
	TxActionApprove = "approve"
	TxActionDeploy  = "deploy"
)

// TrackedTransaction is a server-side record of one wallet transaction
// moving through the lifecycle above.
type TrackedTransaction struct {
	ID              string    `db:"tx_id"`
	Action          string    `db:"action"`
	EscrowAddress   string    `db:"escrow_address"`
	WalletAddress   string    `db:"wallet_address"`
	TxHash          *string   `db:"tx_hash"` // nullable until the wallet reports it
	Status          string    `db:"status"`
	UnsignedPayload string    `db:"unsigned_payload"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}
