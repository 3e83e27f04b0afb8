package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/campusmarket/backend/internal/media"
)

// Processor はバッチ取り込みパイプライン（*media.Pipeline が実装する）
type Processor interface {
	Process(ctx context.Context, category media.Category, assets []media.RawAsset, limits media.Limits) (*media.Result, error)
}

// LocalStorage はローカルファイルシステム上の AssetStore 実装。
type LocalStorage struct {
	pipeline Processor
	router   *media.Router
}

// NewLocalStorage は LocalStorage を生成する。
func NewLocalStorage(pipeline Processor, router *media.Router) *LocalStorage {
	return &LocalStorage{pipeline: pipeline, router: router}
}

func (s *LocalStorage) Put(ctx context.Context, category media.Category, assets []media.RawAsset, limits media.Limits, bind BindFunc) ([]media.PersistedAsset, error) {
	res, err := s.pipeline.Process(ctx, category, assets, limits)
	if err != nil {
		return nil, err
	}
	if bind != nil {
		// 参照の記録はリクエストのキャンセルと無関係に完走させる
		if err := bind(context.WithoutCancel(ctx), res.Assets); err != nil {
			s.discard(res.Assets)
			return nil, fmt.Errorf("storage: bind: %w", err)
		}
	}
	return res.Assets, nil
}

func (s *LocalStorage) Replace(ctx context.Context, category media.Category, asset media.RawAsset, limits media.Limits, rebind RebindFunc) (media.PersistedAsset, error) {
	var previous string
	assets, err := s.Put(ctx, category, []media.RawAsset{asset}, limits, func(ctx context.Context, committed []media.PersistedAsset) error {
		if rebind == nil {
			return nil
		}
		var err error
		previous, err = rebind(ctx, committed[0])
		return err
	})
	if err != nil {
		return media.PersistedAsset{}, err
	}
	// 新しいアセットがコミット・紐付けされた後でのみ旧アセットを削除する
	if previous != "" && previous != assets[0].URL {
		if err := s.Delete(ctx, previous); err != nil {
			slog.Warn("previous asset removal failed", "url", previous, "error", err)
		}
	}
	return assets[0], nil
}

func (s *LocalStorage) Delete(_ context.Context, url string) error {
	path, err := s.router.Resolve(url)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove: %w", err)
	}
	return nil
}

func (s *LocalStorage) discard(assets []media.PersistedAsset) {
	for _, a := range assets {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Error("committed asset cleanup failed", "path", a.Path, "error", err)
		}
	}
}
