package model

import (
	"math/big"
)

// EscrowStatus is the derived lifecycle state of an escrow. It is computed
// from the merged view and never stored.
type EscrowStatus string

const (
	StatusCliff     EscrowStatus = "cliff"
	StatusVesting   EscrowStatus = "vesting"
	StatusClaimable EscrowStatus = "claimable"
	StatusCompleted EscrowStatus = "completed"
	StatusRevoked   EscrowStatus = "revoked"
	StatusDisowned  EscrowStatus = "disowned"
)

// IndexedEscrow is an escrow record from the static index. Records are
// produced by the external indexer and are read-only here.
type IndexedEscrow struct {
	Address         string `json:"address"`
	Funder          string `json:"funder"`
	Token           string `json:"token"`
	Recipient       string `json:"recipient"`
	Amount          string `json:"amount"` // total vested quantity in base units, decimal string
	VestingStart    int64  `json:"vestingStart"`
	VestingDuration int64  `json:"vestingDuration"`
	CliffLength     int64  `json:"cliffLength"`
	OpenClaim       bool   `json:"openClaim"`
	BlockNumber     uint64 `json:"blockNumber"`
	TxHash          string `json:"txHash"`
}

// AmountBig parses the indexed amount. A malformed amount yields zero so
// derivation code never has to deal with a nil total.
func (e *IndexedEscrow) AmountBig() *big.Int {
	amount, ok := new(big.Int).SetString(e.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return new(big.Int)
	}
	return amount
}

// LiveEscrowData is contract state read at view time. Amounts stay as big
// integers end to end; timestamps fit in int64 seconds.
type LiveEscrowData struct {
	Unclaimed    *big.Int `json:"unclaimed"`
	Locked       *big.Int `json:"locked"`
	TotalClaimed *big.Int `json:"totalClaimed"`
	TotalLocked  *big.Int `json:"totalLocked"`
	Owner        string   `json:"owner"`
	DisabledAt   int64    `json:"disabledAt"`
	EndTime      int64    `json:"endTime"`
	StartTime    int64    `json:"startTime"`
	CliffLength  int64    `json:"cliffLength"`
	OpenClaim    bool     `json:"openClaim"`
}

// Escrow is the merged view: indexed record plus optional live contract
// state, token metadata and derived status. Display logic prefers live
// fields wholesale when present and falls back to the indexed schedule
// otherwise; the two are never blended field by field.
type Escrow struct {
	IndexedEscrow
	Live          *LiveEscrowData `json:"live,omitempty"`
	TokenMetadata *TokenMetadata  `json:"tokenMetadata,omitempty"`
	Status        EscrowStatus    `json:"status,omitempty"`
}

// EscrowsIndex is the schema of the external escrows.json resource.
type EscrowsIndex struct {
	LastIndexed        string          `json:"lastIndexed"`
	LastBlock          uint64          `json:"lastBlock"`
	ChainID            int64           `json:"chainId"`
	Factory            string          `json:"factory"`
	FactoryDeployBlock uint64          `json:"factoryDeployBlock"`
	Escrows            []IndexedEscrow `json:"escrows"`
}
