package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// PreferenceRepository persists the preference JSON documents. It implements
// prefs.KVStore so the stores stay persistence-agnostic.
type PreferenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPreferenceRepository(db *sql.DB, logger *zap.Logger) *PreferenceRepository {
	return &PreferenceRepository{db: db, logger: logger}
}

func (r *PreferenceRepository) Get(key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRow(`SELECT value FROM preferences WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	return value, nil
}

func (r *PreferenceRepository) Set(key string, value []byte) error {
	_, err := r.db.Exec(`
		INSERT INTO preferences (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`, key, value)

	if err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}

func (r *PreferenceRepository) Delete(key string) error {
	if _, err := r.db.Exec(`DELETE FROM preferences WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete preference %s: %w", key, err)
	}
	return nil
}
