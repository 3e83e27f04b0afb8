package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSettingsRepository は site_settings テーブルを読む settings.Loader 実装
type PgSettingsRepository struct {
	pool *pgxpool.Pool
}

// NewPgSettingsRepository は PgSettingsRepository を生成する
func NewPgSettingsRepository(pool *pgxpool.Pool) *PgSettingsRepository {
	return &PgSettingsRepository{pool: pool}
}

// LoadSettings は全キーを返す
func (r *PgSettingsRepository) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM site_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
