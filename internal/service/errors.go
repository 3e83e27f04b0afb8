package service

import "errors"

var (
	// ErrForbidden は対象エンティティの所有者ではない場合に返す
	ErrForbidden = errors.New("forbidden")
	// ErrUploadsDisabled はサイト設定でアップロードが停止されている場合に返す
	ErrUploadsDisabled = errors.New("uploads_disabled")
)
