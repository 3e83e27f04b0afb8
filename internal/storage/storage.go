package storage

import (
	"context"

	"github.com/campusmarket/backend/internal/media"
)

// BindFunc は新しいアセットを所有エンティティに紐付ける（例: DB の参照更新）。
// エラーを返すと、コミット済みのアセットは削除される。
type BindFunc func(ctx context.Context, assets []media.PersistedAsset) error

// RebindFunc は所有エンティティの参照を新しいアセットに付け替え、
// それまで参照していた URL を返す（無ければ ""）。
type RebindFunc func(ctx context.Context, asset media.PersistedAsset) (previous string, err error)

// AssetStore は画像アセットのファイル操作を一箇所に集約するインターフェース。
// アップロード・差し替え・削除の原子性とロールバックはここで保証する。
type AssetStore interface {
	// Put はバッチを取り込み、全件コミットしてから bind を呼ぶ。
	// bind が失敗した場合はバッチ全体を削除する。
	Put(ctx context.Context, category media.Category, assets []media.RawAsset, limits media.Limits, bind BindFunc) ([]media.PersistedAsset, error)

	// Replace は単一アセットを取り込み、rebind 成功後にのみ旧アセットを削除する。
	// 取り込みや rebind が失敗した場合、旧アセットのファイルはそのまま残る。
	Replace(ctx context.Context, category media.Category, asset media.RawAsset, limits media.Limits, rebind RebindFunc) (media.PersistedAsset, error)

	// Delete は URL に対応するファイルを削除する（存在しない場合は何もしない）。
	Delete(ctx context.Context, url string) error
}
