package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgProfileRepository は ProfileRepository の PostgreSQL 実装
type PgProfileRepository struct {
	pool *pgxpool.Pool
}

// NewPgProfileRepository は PgProfileRepository を生成する
func NewPgProfileRepository(pool *pgxpool.Pool) *PgProfileRepository {
	return &PgProfileRepository{pool: pool}
}

// SetAvatarURL は旧 URL を行ロック付きで読み出してから更新する（並行更新でも旧 URL を取りこぼさない）
func (r *PgProfileRepository) SetAvatarURL(ctx context.Context, userID, url string) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var previous string
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(avatar_url, '') FROM profiles WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE profiles SET avatar_url = NULLIF($2, ''), updated_at = NOW() WHERE user_id = $1`,
		userID, url,
	); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return previous, nil
}
