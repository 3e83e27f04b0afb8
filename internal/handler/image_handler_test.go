package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/campusmarket/backend/internal/media"
	"github.com/campusmarket/backend/internal/repository"
	"github.com/campusmarket/backend/internal/service"
	"github.com/campusmarket/backend/pkg/auth"
)

// ---------------------------------------------------------------------------
// mockMediaService — MediaService のモック
// ---------------------------------------------------------------------------

type mockMediaService struct {
	addFunc          func(ctx context.Context, userID, listingID string, assets []media.RawAsset) ([]media.PersistedAsset, error)
	removeFunc       func(ctx context.Context, userID, listingID, url string) error
	deleteFunc       func(ctx context.Context, userID, listingID string) error
	updateAvatarFunc func(ctx context.Context, userID string, asset media.RawAsset) (media.PersistedAsset, error)
	limits           *media.Limits
}

func (m *mockMediaService) AddListingImages(ctx context.Context, userID, listingID string, assets []media.RawAsset) ([]media.PersistedAsset, error) {
	if m.addFunc != nil {
		return m.addFunc(ctx, userID, listingID, assets)
	}
	return nil, nil
}

func (m *mockMediaService) RemoveListingImage(ctx context.Context, userID, listingID, url string) error {
	if m.removeFunc != nil {
		return m.removeFunc(ctx, userID, listingID, url)
	}
	return nil
}

func (m *mockMediaService) DeleteListing(ctx context.Context, userID, listingID string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, userID, listingID)
	}
	return nil
}

func (m *mockMediaService) UpdateAvatar(ctx context.Context, userID string, asset media.RawAsset) (media.PersistedAsset, error) {
	if m.updateAvatarFunc != nil {
		return m.updateAvatarFunc(ctx, userID, asset)
	}
	return media.PersistedAsset{}, nil
}

func (m *mockMediaService) UploadLimits(context.Context) media.Limits {
	if m.limits != nil {
		return *m.limits
	}
	return media.DefaultLimits()
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type testFile struct {
	name        string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, field string, files ...testFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.name))
		hdr.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func uploadRequest(t *testing.T, method, target, field, userID string, files ...testFile) *http.Request {
	t.Helper()
	body, ct := multipartBody(t, field, files...)
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", ct)
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body["error"]
}

// ---------------------------------------------------------------------------
// Tests: UploadListingImages
// ---------------------------------------------------------------------------

func TestUploadListingImages_Created(t *testing.T) {
	var gotUser, gotListing string
	var gotAssets []media.RawAsset
	ms := &mockMediaService{
		addFunc: func(ctx context.Context, userID, listingID string, assets []media.RawAsset) ([]media.PersistedAsset, error) {
			gotUser, gotListing, gotAssets = userID, listingID, assets
			out := make([]media.PersistedAsset, len(assets))
			for i := range assets {
				out[i] = media.PersistedAsset{URL: fmt.Sprintf("/uploads/product/%d.jpg", i), Format: media.FormatJPEG}
			}
			return out, nil
		},
	}
	h := NewImageHandler(ms)

	req := uploadRequest(t, "POST", "/api/listings/l1/images", "images", "user-1",
		testFile{"a.jpg", "image/jpeg", []byte("aaa")},
		testFile{"b.png", "image/png", []byte("bbbb")},
	)
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.UploadListingImages(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotUser != "user-1" || gotListing != "l1" {
		t.Errorf("expected user-1/l1, got %q/%q", gotUser, gotListing)
	}
	if len(gotAssets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(gotAssets))
	}
	if gotAssets[0].Name != "a.jpg" || gotAssets[0].ContentType != "image/jpeg" || string(gotAssets[0].Data) != "aaa" {
		t.Errorf("unexpected first asset: %+v", gotAssets[0])
	}
	if gotAssets[1].Name != "b.png" || gotAssets[1].Size != 4 {
		t.Errorf("unexpected second asset: %+v", gotAssets[1])
	}

	var resp struct {
		URLs   []string               `json:"urls"`
		Images []media.PersistedAsset `json:"images"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.URLs) != 2 || resp.URLs[0] != "/uploads/product/0.jpg" || resp.URLs[1] != "/uploads/product/1.jpg" {
		t.Errorf("unexpected urls: %v", resp.URLs)
	}
}

func TestUploadListingImages_Unauthorized(t *testing.T) {
	called := false
	h := NewImageHandler(&mockMediaService{
		addFunc: func(ctx context.Context, userID, listingID string, assets []media.RawAsset) ([]media.PersistedAsset, error) {
			called = true
			return nil, nil
		},
	})

	req := uploadRequest(t, "POST", "/api/listings/l1/images", "images", "",
		testFile{"a.jpg", "image/jpeg", []byte("aaa")})
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.UploadListingImages(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Error("service should not be called without a user")
	}
}

func TestUploadListingImages_OversizedFileIsNotRead(t *testing.T) {
	limits := media.DefaultLimits()
	limits.MaxFileSize = 100
	var got []media.RawAsset
	h := NewImageHandler(&mockMediaService{
		limits: &limits,
		addFunc: func(ctx context.Context, userID, listingID string, assets []media.RawAsset) ([]media.PersistedAsset, error) {
			got = assets
			return nil, &media.Error{Kind: media.KindFileTooLarge, Index: 0, Name: "big.jpg"}
		},
	})

	req := uploadRequest(t, "POST", "/api/listings/l1/images", "images", "user-1",
		testFile{"big.jpg", "image/jpeg", bytes.Repeat([]byte{0xff}, 150)})
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.UploadListingImages(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(got))
	}
	if got[0].Size <= limits.MaxFileSize || len(got[0].Data) != 0 {
		t.Errorf("expected size over %d and no data, got size=%d len=%d", limits.MaxFileSize, got[0].Size, len(got[0].Data))
	}
}

func TestUploadListingImages_TooManyLargeFilesIsBatchTooLarge(t *testing.T) {
	limits := media.DefaultLimits()
	limits.MaxFileSize = 1 << 20
	limits.MaxBatchCount = 2
	called := false
	h := NewImageHandler(&mockMediaService{
		limits: &limits,
		addFunc: func(ctx context.Context, userID, listingID string, assets []media.RawAsset) ([]media.PersistedAsset, error) {
			called = true
			return nil, nil
		},
	})

	// 4 MiB 超の本体は上限を超えるが、3 件目のパートで件数超過として却下される
	var files []testFile
	for i := 0; i < 4; i++ {
		files = append(files, testFile{fmt.Sprintf("%d.jpg", i), "image/jpeg", bytes.Repeat([]byte{0xff}, 1<<20)})
	}
	req := uploadRequest(t, "POST", "/api/listings/l1/images", "images", "user-1", files...)
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.UploadListingImages(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != string(media.KindBatchTooLarge) {
		t.Errorf("expected error=%s, got %q", media.KindBatchTooLarge, code)
	}
	if called {
		t.Error("service should not be called for an over-count batch")
	}
}

func TestUploadListingImages_IgnoresOtherFields(t *testing.T) {
	var got []media.RawAsset
	h := NewImageHandler(&mockMediaService{
		addFunc: func(ctx context.Context, userID, listingID string, assets []media.RawAsset) ([]media.PersistedAsset, error) {
			got = assets
			return nil, nil
		},
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "desk lamp")
	fw, _ := mw.CreateFormFile("images", "a.jpg")
	_, _ = fw.Write([]byte("aaa"))
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/api/listings/l1/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = req.WithContext(auth.WithUserID(req.Context(), "user-1"))
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.UploadListingImages(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(got) != 1 || got[0].Name != "a.jpg" || string(got[0].Data) != "aaa" {
		t.Errorf("unexpected assets %+v", got)
	}
}

func TestUploadListingImages_NotMultipart(t *testing.T) {
	h := NewImageHandler(&mockMediaService{})
	req := httptest.NewRequest("POST", "/api/listings/l1/images", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithUserID(req.Context(), "user-1"))
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.UploadListingImages(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "invalid_multipart" {
		t.Errorf("expected error=invalid_multipart, got %q", code)
	}
}

func TestBodyLimit(t *testing.T) {
	if got, want := bodyLimit(10, 2), int64(22+multipartOverhead); got != want {
		t.Errorf("bodyLimit(10, 2) = %d, want %d", got, want)
	}
	if got := bodyLimit(math.MaxInt64/2, 100); got != math.MaxInt64 {
		t.Errorf("expected clamp to MaxInt64, got %d", got)
	}
	if got := bodyLimit(0, 5); got != multipartOverhead {
		t.Errorf("expected overhead only for zero size, got %d", got)
	}
}

func TestUploadListingImages_BodyTooLarge(t *testing.T) {
	limits := media.DefaultLimits()
	limits.MaxFileSize = 10
	limits.MaxBatchCount = 1
	called := false
	h := NewImageHandler(&mockMediaService{
		limits: &limits,
		addFunc: func(ctx context.Context, userID, listingID string, assets []media.RawAsset) ([]media.PersistedAsset, error) {
			called = true
			return nil, nil
		},
	})

	req := uploadRequest(t, "POST", "/api/listings/l1/images", "images", "user-1",
		testFile{"huge.jpg", "image/jpeg", bytes.Repeat([]byte{0xff}, 2<<20)})
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.UploadListingImages(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
	if called {
		t.Error("service should not be called for an oversized body")
	}
}

func TestUploadListingImages_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", repository.ErrNotFound, http.StatusNotFound, "not_found"},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"uploads disabled", service.ErrUploadsDisabled, http.StatusServiceUnavailable, "uploads_disabled"},
		{"empty batch", media.ErrEmptyBatch, http.StatusBadRequest, "empty_batch"},
		{"batch too large", &media.Error{Kind: media.KindBatchTooLarge, Index: -1}, http.StatusBadRequest, "batch_too_large"},
		{"unsupported type", &media.Error{Kind: media.KindUnsupportedType, Index: 0, Name: "a.gif"}, http.StatusUnsupportedMediaType, "unsupported_declared_type"},
		{"invalid format", &media.Error{Kind: media.KindInvalidFormat, Index: 1, Name: "b.jpg"}, http.StatusUnsupportedMediaType, "invalid_format"},
		{"processing", &media.Error{Kind: media.KindProcessing, Index: 0, Err: errors.New("decode")}, http.StatusUnprocessableEntity, "processing_error"},
		{"io", &media.Error{Kind: media.KindIO, Index: 0, Err: errors.New("disk full")}, http.StatusInternalServerError, "io_failure"},
		{"canceled", &media.Error{Kind: media.KindCanceled, Index: -1, Err: context.Canceled}, http.StatusRequestTimeout, "canceled"},
		{"wrapped bind failure", fmt.Errorf("storage: bind: %w", errors.New("db down")), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewImageHandler(&mockMediaService{
				addFunc: func(ctx context.Context, userID, listingID string, assets []media.RawAsset) ([]media.PersistedAsset, error) {
					return nil, tt.err
				},
			})
			req := uploadRequest(t, "POST", "/api/listings/l1/images", "images", "user-1",
				testFile{"a.jpg", "image/jpeg", []byte("aaa")})
			req.SetPathValue("id", "l1")
			rec := httptest.NewRecorder()
			h.UploadListingImages(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			if code := decodeError(t, rec); code != tt.code {
				t.Errorf("expected error=%q, got %q", tt.code, code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Tests: DeleteListingImage / DeleteListing
// ---------------------------------------------------------------------------

func TestDeleteListingImage_RequiresURL(t *testing.T) {
	h := NewImageHandler(&mockMediaService{})
	req := httptest.NewRequest("DELETE", "/api/listings/l1/images", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), "user-1"))
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.DeleteListingImage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteListingImage_OK(t *testing.T) {
	var gotURL string
	h := NewImageHandler(&mockMediaService{
		removeFunc: func(ctx context.Context, userID, listingID, url string) error {
			gotURL = url
			return nil
		},
	})
	req := httptest.NewRequest("DELETE", "/api/listings/l1/images?url=/uploads/product/x.jpg", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), "user-1"))
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.DeleteListingImage(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if gotURL != "/uploads/product/x.jpg" {
		t.Errorf("expected url to be forwarded, got %q", gotURL)
	}
}

func TestDeleteListing_NotFound(t *testing.T) {
	h := NewImageHandler(&mockMediaService{
		deleteFunc: func(ctx context.Context, userID, listingID string) error {
			return repository.ErrNotFound
		},
	})
	req := httptest.NewRequest("DELETE", "/api/listings/missing", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), "user-1"))
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.DeleteListing(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Tests: UploadAvatar
// ---------------------------------------------------------------------------

func TestUploadAvatar_OK(t *testing.T) {
	var gotAsset media.RawAsset
	h := NewImageHandler(&mockMediaService{
		updateAvatarFunc: func(ctx context.Context, userID string, asset media.RawAsset) (media.PersistedAsset, error) {
			gotAsset = asset
			return media.PersistedAsset{URL: "/uploads/avatar/new.webp", Format: media.FormatWebP}, nil
		},
	})
	req := uploadRequest(t, "PUT", "/api/me/avatar", "avatar", "user-1",
		testFile{"me.webp", "image/webp", []byte("RIFF")})
	rec := httptest.NewRecorder()
	h.UploadAvatar(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotAsset.Name != "me.webp" {
		t.Errorf("expected me.webp, got %q", gotAsset.Name)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["avatar_url"] != "/uploads/avatar/new.webp" {
		t.Errorf("unexpected avatar_url: %v", resp["avatar_url"])
	}
}

func TestUploadAvatar_RejectsBatchSizesBeforeService(t *testing.T) {
	tests := []struct {
		name  string
		files []testFile
		code  string
	}{
		{"none", nil, "empty_batch"},
		{"two", []testFile{
			{"a.jpg", "image/jpeg", []byte("a")},
			{"b.jpg", "image/jpeg", []byte("b")},
		}, "batch_too_large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := NewImageHandler(&mockMediaService{
				updateAvatarFunc: func(ctx context.Context, userID string, asset media.RawAsset) (media.PersistedAsset, error) {
					called = true
					return media.PersistedAsset{}, nil
				},
			})
			req := uploadRequest(t, "PUT", "/api/me/avatar", "avatar", "user-1", tt.files...)
			rec := httptest.NewRecorder()
			h.UploadAvatar(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if code := decodeError(t, rec); code != tt.code {
				t.Errorf("expected error=%q, got %q", tt.code, code)
			}
			if called {
				t.Error("service should not be called")
			}
		})
	}
}
