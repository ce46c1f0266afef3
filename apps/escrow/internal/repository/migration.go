package repository

import (
	"database/sql"
	"fmt"
)

// InitMigration initializes the database. In production, this would use a proper migration
// library like go-migrate
func InitMigration(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS preferences (
			key VARCHAR(64) PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tracked_transactions (
			tx_id UUID PRIMARY KEY,
			action VARCHAR(20) NOT NULL,
			escrow_address VARCHAR(42) NOT NULL,
			wallet_address VARCHAR(42) NOT NULL,
			tx_hash VARCHAR(66),
			status VARCHAR(20) NOT NULL,
			unsigned_payload JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tracked_transactions_status ON tracked_transactions (status)`,
		`CREATE INDEX IF NOT EXISTS idx_tracked_transactions_wallet ON tracked_transactions (wallet_address)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}
