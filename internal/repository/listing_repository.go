package repository

import (
	"context"

	"github.com/campusmarket/backend/internal/model"
)

// ListingRepository は出品と出品画像の永続化インターフェース
type ListingRepository interface {
	FindByID(ctx context.Context, id string) (*model.Listing, error)
	Delete(ctx context.Context, id string) error
	ListImages(ctx context.Context, listingID string) ([]model.ListingImage, error)
	// AddImages は既存画像の後ろに images を順序通り追加する（全件 or 0 件）
	AddImages(ctx context.Context, listingID string, images []model.ListingImage) error
	RemoveImage(ctx context.Context, listingID, url string) error
}
