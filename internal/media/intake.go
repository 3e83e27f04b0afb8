package media

import (
	"fmt"
	"os"
)

// admit applies every pre-I/O ceiling to the batch. It never touches disk.
func admit(c Category, assets []RawAsset, l Limits) error {
	if len(assets) == 0 {
		return batchError(KindEmptyBatch, "no files submitted")
	}
	if limit := l.BatchLimit(c); len(assets) > limit {
		return batchError(KindBatchTooLarge, "%d files submitted, limit is %d", len(assets), limit)
	}
	for i, a := range assets {
		if !declaredAllowed(a.ContentType) {
			return &Error{Kind: KindUnsupportedType, Index: i, Name: a.Name,
				Err: fmt.Errorf("declared type %q not accepted", a.ContentType)}
		}
		if size := a.declaredSize(); size > l.MaxFileSize {
			return &Error{Kind: KindFileTooLarge, Index: i, Name: a.Name,
				Err: fmt.Errorf("%d bytes exceeds limit of %d", size, l.MaxFileSize)}
		}
	}
	return nil
}

// stageRaw writes each payload under dir with a fresh identifier. Files are
// created exclusively, so an identifier is never reused within the batch.
func stageRaw(r *Router, dir string, assets []RawAsset) ([]*StagedAsset, error) {
	staged := make([]*StagedAsset, len(assets))
	for i, a := range assets {
		s := &StagedAsset{Index: i, ID: r.NewID(), Name: a.Name}
		s.Path = r.rawPath(dir, s.ID)
		if err := writeExclusive(s.Path, a.Data); err != nil {
			return nil, assetError(KindIO, s, err)
		}
		s.Bytes = int64(len(a.Data))
		staged[i] = s
	}
	return staged, nil
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
