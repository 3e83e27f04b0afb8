package service

import (
	"context"

	"github.com/campusmarket/backend/internal/media"
)

// MediaService は出品画像・アバターのアップロードと削除を扱う
type MediaService interface {
	// AddListingImages は出品にバッチで画像を追加する（全件成功 or 0 件）
	AddListingImages(ctx context.Context, userID, listingID string, assets []media.RawAsset) ([]media.PersistedAsset, error)
	RemoveListingImage(ctx context.Context, userID, listingID, url string) error
	// DeleteListing は出品と、その全画像ファイルを削除する
	DeleteListing(ctx context.Context, userID, listingID string) error
	// UpdateAvatar は新しいアバターをコミットしてから旧アバターを削除する
	UpdateAvatar(ctx context.Context, userID string, asset media.RawAsset) (media.PersistedAsset, error)
	// UploadLimits は現在有効なアップロード上限を返す
	UploadLimits(ctx context.Context) media.Limits
}
