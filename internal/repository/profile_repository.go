package repository

import "context"

// ProfileRepository はプロフィール永続化のインターフェース
type ProfileRepository interface {
	// SetAvatarURL はアバター URL を更新し、直前の URL を返す（未設定なら ""）
	SetAvatarURL(ctx context.Context, userID, url string) (previous string, err error)
}
