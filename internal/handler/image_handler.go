package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"

	"github.com/campusmarket/backend/internal/media"
	"github.com/campusmarket/backend/internal/repository"
	"github.com/campusmarket/backend/internal/service"
	"github.com/campusmarket/backend/pkg/auth"
)

// multipartOverhead はファイル本体以外（境界・ヘッダ）に許容するバイト数
const multipartOverhead = 1 << 20

// ImageHandler は出品画像・アバターのアップロード・削除を処理する
type ImageHandler struct {
	media service.MediaService
}

// NewImageHandler は ImageHandler を生成する
func NewImageHandler(ms service.MediaService) *ImageHandler {
	return &ImageHandler{media: ms}
}

// UploadListingImages は POST /api/listings/{id}/images を処理する（multipart: images）
func (h *ImageHandler) UploadListingImages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	listingID := r.PathValue("id")
	if listingID == "" {
		writeError(w, http.StatusBadRequest, "id_required", "")
		return
	}

	limits := h.media.UploadLimits(r.Context())
	assets, ok := readAssets(w, r, "images", limits, limits.MaxBatchCount)
	if !ok {
		return
	}

	persisted, err := h.media.AddListingImages(r.Context(), userID, listingID, assets)
	if err != nil {
		writeUploadError(w, err, "listing_id", listingID)
		return
	}

	urls := make([]string, len(persisted))
	for i, a := range persisted {
		urls[i] = a.URL
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"urls": urls, "images": persisted})
}

// DeleteListingImage は DELETE /api/listings/{id}/images?url=... を処理する
func (h *ImageHandler) DeleteListingImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	listingID := r.PathValue("id")
	url := r.URL.Query().Get("url")
	if listingID == "" || url == "" {
		writeError(w, http.StatusBadRequest, "id_and_url_required", "")
		return
	}

	if err := h.media.RemoveListingImage(r.Context(), userID, listingID, url); err != nil {
		writeUploadError(w, err, "listing_id", listingID)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// DeleteListing は DELETE /api/listings/{id} を処理する（画像ファイルも削除）
func (h *ImageHandler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	listingID := r.PathValue("id")
	if listingID == "" {
		writeError(w, http.StatusBadRequest, "id_required", "")
		return
	}

	if err := h.media.DeleteListing(r.Context(), userID, listingID); err != nil {
		writeUploadError(w, err, "listing_id", listingID)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// UploadAvatar は PUT /api/me/avatar を処理する（multipart: avatar）
func (h *ImageHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	limits := h.media.UploadLimits(r.Context())
	assets, ok := readAssets(w, r, "avatar", limits, 1)
	if !ok {
		return
	}

	// アバターは常に 1 件。複数件は readAssets が、0 件はここで却下する
	if len(assets) == 0 {
		writeUploadError(w, media.ErrEmptyBatch, "user_id", userID)
		return
	}

	persisted, err := h.media.UpdateAvatar(r.Context(), userID, assets[0])
	if err != nil {
		writeUploadError(w, err, "user_id", userID)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"avatar_url": persisted.URL, "avatar": persisted})
}

// readAssets は multipart の field から RawAsset を順に読み出す。
// maxFiles を超えるファイルパートが現れた時点で、その本体を読まずに batch_too_large で却下する。
// 各ファイルは limits.MaxFileSize + 1 バイトまでしか読まず、超過判定はパイプラインに任せる。
func readAssets(w http.ResponseWriter, r *http.Request, field string, limits media.Limits, maxFiles int) ([]media.RawAsset, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit(limits.MaxFileSize, maxFiles))
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart", "")
		return nil, false
	}

	var assets []media.RawAsset
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeReadError(w, err, field)
			return nil, false
		}
		if part.FormName() != field || part.FileName() == "" {
			part.Close()
			continue
		}
		if len(assets) == maxFiles {
			part.Close()
			writeError(w, http.StatusBadRequest, string(media.KindBatchTooLarge),
				fmt.Sprintf("more than %d files submitted", maxFiles))
			return nil, false
		}
		a, err := readPart(part, limits.MaxFileSize)
		part.Close()
		if err != nil {
			writeReadError(w, err, field)
			return nil, false
		}
		assets = append(assets, a)
	}
	return assets, true
}

func readPart(p *multipart.Part, maxSize int64) (media.RawAsset, error) {
	a := media.RawAsset{
		Name:        p.FileName(),
		ContentType: p.Header.Get("Content-Type"),
	}
	data, err := io.ReadAll(io.LimitReader(p, maxSize+1))
	if err != nil {
		return a, err
	}
	a.Size = int64(len(data))
	// 上限超過のファイルは本体を保持しない（サイズ判定だけで却下される）
	if a.Size <= maxSize {
		a.Data = data
	}
	return a, nil
}

// bodyLimit はリクエスト本体の上限。設定値が大きくてもオーバーフローしない
func bodyLimit(maxFileSize int64, maxFiles int) int64 {
	if maxFileSize <= 0 || maxFiles <= 0 {
		return multipartOverhead
	}
	perFile := maxFileSize + 1
	if perFile > (math.MaxInt64-multipartOverhead)/int64(maxFiles) {
		return math.MaxInt64
	}
	return perFile*int64(maxFiles) + multipartOverhead
}

func writeReadError(w http.ResponseWriter, err error, field string) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeError(w, http.StatusRequestEntityTooLarge, string(media.KindFileTooLarge), "request body too large")
		return
	}
	slog.Warn("multipart read failed", "error", err, "field", field)
	writeError(w, http.StatusBadRequest, "invalid_multipart", "")
}

// uploadStatus はパイプラインのエラー種別を HTTP ステータスに対応付ける
var uploadStatus = map[media.Kind]int{
	media.KindEmptyBatch:      http.StatusBadRequest,
	media.KindBatchTooLarge:   http.StatusBadRequest,
	media.KindFileTooLarge:    http.StatusRequestEntityTooLarge,
	media.KindUnsupportedType: http.StatusUnsupportedMediaType,
	media.KindInvalidFormat:   http.StatusUnsupportedMediaType,
	media.KindProcessing:      http.StatusUnprocessableEntity,
	media.KindIO:              http.StatusInternalServerError,
	media.KindCanceled:        http.StatusRequestTimeout,
}

func writeUploadError(w http.ResponseWriter, err error, idKey, id string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "")
		return
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "")
		return
	case errors.Is(err, service.ErrUploadsDisabled):
		writeError(w, http.StatusServiceUnavailable, "uploads_disabled", "")
		return
	}

	var me *media.Error
	if errors.As(err, &me) {
		status, ok := uploadStatus[me.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			slog.Error("upload failed", "error", err, idKey, id)
		}
		writeError(w, status, string(me.Kind), me.Error())
		return
	}

	slog.Error("upload request failed", "error", err, idKey, id)
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	body := map[string]string{"error": code}
	if message != "" {
		body["message"] = message
	}
	_ = json.NewEncoder(w).Encode(body)
}
