package service

import (
	"context"
	"log/slog"

	"github.com/campusmarket/backend/internal/media"
	"github.com/campusmarket/backend/internal/model"
	"github.com/campusmarket/backend/internal/repository"
	"github.com/campusmarket/backend/internal/settings"
	"github.com/campusmarket/backend/internal/storage"
)

// SettingsProvider は現在のサイト設定を返す（*settings.Store が実装する）
type SettingsProvider interface {
	Get(ctx context.Context) settings.Settings
}

// MediaServiceImpl は MediaService の実装
type MediaServiceImpl struct {
	store    storage.AssetStore
	listings repository.ListingRepository
	profiles repository.ProfileRepository
	settings SettingsProvider
}

// NewMediaService は MediaServiceImpl を生成する
func NewMediaService(store storage.AssetStore, listings repository.ListingRepository, profiles repository.ProfileRepository, sp SettingsProvider) MediaService {
	return &MediaServiceImpl{store: store, listings: listings, profiles: profiles, settings: sp}
}

func (s *MediaServiceImpl) UploadLimits(ctx context.Context) media.Limits {
	return s.settings.Get(ctx).Limits
}

// uploadSettings はアップロード可否を判定し、有効な上限を返す
func (s *MediaServiceImpl) uploadSettings(ctx context.Context) (media.Limits, error) {
	cur := s.settings.Get(ctx)
	if cur.MaintenanceMode || !cur.UploadsEnabled {
		return media.Limits{}, ErrUploadsDisabled
	}
	return cur.Limits, nil
}

// ownedListing は出品を取得し、userID が出品者であることを確認する
func (s *MediaServiceImpl) ownedListing(ctx context.Context, userID, listingID string) (*model.Listing, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != userID {
		return nil, ErrForbidden
	}
	return listing, nil
}

func (s *MediaServiceImpl) AddListingImages(ctx context.Context, userID, listingID string, assets []media.RawAsset) ([]media.PersistedAsset, error) {
	limits, err := s.uploadSettings(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedListing(ctx, userID, listingID); err != nil {
		return nil, err
	}

	return s.store.Put(ctx, media.CategoryProduct, assets, limits, func(ctx context.Context, committed []media.PersistedAsset) error {
		images := make([]model.ListingImage, len(committed))
		for i, a := range committed {
			images[i] = model.ListingImage{
				ListingID: listingID,
				URL:       a.URL,
				Width:     a.Width,
				Height:    a.Height,
				ByteSize:  a.Bytes,
			}
		}
		return s.listings.AddImages(ctx, listingID, images)
	})
}

func (s *MediaServiceImpl) RemoveListingImage(ctx context.Context, userID, listingID, url string) error {
	if _, err := s.ownedListing(ctx, userID, listingID); err != nil {
		return err
	}
	if err := s.listings.RemoveImage(ctx, listingID, url); err != nil {
		return err
	}
	// 参照は既に消えているので、ファイル削除の失敗はログのみ
	if err := s.store.Delete(ctx, url); err != nil {
		slog.Warn("listing image file removal failed", "error", err, "listing_id", listingID, "url", url)
	}
	return nil
}

func (s *MediaServiceImpl) DeleteListing(ctx context.Context, userID, listingID string) error {
	if _, err := s.ownedListing(ctx, userID, listingID); err != nil {
		return err
	}
	images, err := s.listings.ListImages(ctx, listingID)
	if err != nil {
		return err
	}
	if err := s.listings.Delete(ctx, listingID); err != nil {
		return err
	}
	for _, img := range images {
		if err := s.store.Delete(ctx, img.URL); err != nil {
			slog.Warn("listing image file removal failed", "error", err, "listing_id", listingID, "url", img.URL)
		}
	}
	return nil
}

func (s *MediaServiceImpl) UpdateAvatar(ctx context.Context, userID string, asset media.RawAsset) (media.PersistedAsset, error) {
	limits, err := s.uploadSettings(ctx)
	if err != nil {
		return media.PersistedAsset{}, err
	}
	return s.store.Replace(ctx, media.CategoryAvatar, asset, limits, func(ctx context.Context, committed media.PersistedAsset) (string, error) {
		return s.profiles.SetAvatarURL(ctx, userID, committed.URL)
	})
}
