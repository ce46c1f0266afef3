package txwatcher

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"escrow/apps/escrow/internal/event_publisher"
	"escrow/apps/escrow/internal/model"
	"escrow/apps/escrow/internal/repository"
)

// Watcher polls the chain for receipts of tracked transactions and drives
// them through pending -> confirming -> confirmed/failed. Publishing is best
// effort; a nil publisher disables it.
type Watcher struct {
	client    *ethclient.Client
	repo      *repository.TransactionRepository
	publisher *event_publisher.EventPublisher
	interval  time.Duration
	logger    *zap.Logger
}

func NewWatcher(client *ethclient.Client, repo *repository.TransactionRepository, publisher *event_publisher.EventPublisher, interval time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		client:    client,
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
	}
}

// Run starts the polling loop and blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("Starting transaction watcher", zap.Duration("poll_interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Transaction watcher stopping")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	txs, err := w.repo.ListWatchable()
	if err != nil {
		w.logger.Error("Failed to list watchable transactions", zap.Error(err))
		return
	}

	for _, tx := range txs {
		if tx.TxHash == nil {
			continue
		}
		w.check(ctx, tx)
	}
}

func (w *Watcher) check(ctx context.Context, tx model.TrackedTransaction) {
	hash := common.HexToHash(*tx.TxHash)

	receipt, err := w.client.TransactionReceipt(ctx, hash)
	if err != nil {
		// No receipt yet. If the node already knows the transaction, it has
		// left the wallet and is confirming.
		if tx.Status == model.TxStatusPending {
			if _, isPending, txErr := w.client.TransactionByHash(ctx, hash); txErr == nil && isPending {
				w.transition(tx, model.TxStatusConfirming)
			}
		}
		return
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		w.transition(tx, model.TxStatusConfirmed)
	} else {
		w.transition(tx, model.TxStatusFailed)
	}
}

func (w *Watcher) transition(tx model.TrackedTransaction, status string) {
	if err := w.repo.UpdateStatus(tx.ID, status); err != nil {
		w.logger.Error("Failed to update transaction status",
			zap.String("tx_id", tx.ID),
			zap.String("status", status),
			zap.Error(err))
		return
	}

	w.logger.Info("Transaction state changed",
		zap.String("tx_id", tx.ID),
		zap.String("action", tx.Action),
		zap.String("status", status))

	if w.publisher != nil {
		if err := w.publisher.PublishStatusChange(tx, status); err != nil {
			w.logger.Error("Failed to publish transaction event",
				zap.String("tx_id", tx.ID),
				zap.Error(err))
		}
	}
}
