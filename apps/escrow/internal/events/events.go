package events

import (
	"time"
)

// TransactionEvent announces a tracked transaction changing lifecycle state.
type TransactionEvent struct {
	EventType     string    `json:"event_type"`
	TxID          string    `json:"tx_id"`
	TxHash        string    `json:"tx_hash,omitempty"`
	Action        string    `json:"action"`
	EscrowAddress string    `json:"escrow_address"`
	WalletAddress string    `json:"wallet_address"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}
