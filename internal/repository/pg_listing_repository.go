package repository

import (
	"context"
	"errors"

	"github.com/campusmarket/backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgListingRepository は ListingRepository の PostgreSQL 実装
type PgListingRepository struct {
	pool *pgxpool.Pool
}

// NewPgListingRepository は PgListingRepository を生成する
func NewPgListingRepository(pool *pgxpool.Pool) *PgListingRepository {
	return &PgListingRepository{pool: pool}
}

func (r *PgListingRepository) FindByID(ctx context.Context, id string) (*model.Listing, error) {
	var l model.Listing
	err := r.pool.QueryRow(ctx,
		`SELECT id, seller_id, title, status, created_at, updated_at
		 FROM listings WHERE id = $1`,
		id,
	).Scan(&l.ID, &l.SellerID, &l.Title, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Delete は出品を削除する（listing_images は ON DELETE CASCADE）
func (r *PgListingRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgListingRepository) ListImages(ctx context.Context, listingID string) ([]model.ListingImage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT listing_id, url, position, width, height, byte_size, created_at
		 FROM listing_images
		 WHERE listing_id = $1
		 ORDER BY position`,
		listingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []model.ListingImage
	for rows.Next() {
		var img model.ListingImage
		if err := rows.Scan(
			&img.ListingID, &img.URL, &img.Position,
			&img.Width, &img.Height, &img.ByteSize, &img.CreatedAt,
		); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// AddImages は 1 トランザクションで画像参照を追加する。position は既存の最大値の続きから振る
func (r *PgListingRepository) AddImages(ctx context.Context, listingID string, images []model.ListingImage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// 同一出品への並行追加で position が重複しないよう行ロックを取る
	if err := tx.QueryRow(ctx,
		`SELECT id FROM listings WHERE id = $1 FOR UPDATE`, listingID,
	).Scan(new(string)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var next int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM listing_images WHERE listing_id = $1`,
		listingID,
	).Scan(&next); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, img := range images {
		batch.Queue(
			`INSERT INTO listing_images (listing_id, url, position, width, height, byte_size)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			listingID, img.URL, next+i, img.Width, img.Height, img.ByteSize,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE listings SET updated_at = NOW() WHERE id = $1`, listingID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PgListingRepository) RemoveImage(ctx context.Context, listingID, url string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM listing_images WHERE listing_id = $1 AND url = $2`,
		listingID, url,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
