package media

import (
	"errors"
	"fmt"
)

// Kind classifies why a batch was aborted.
type Kind string

const (
	KindEmptyBatch      Kind = "empty_batch"
	KindBatchTooLarge   Kind = "batch_too_large"
	KindFileTooLarge    Kind = "file_too_large"
	KindUnsupportedType Kind = "unsupported_declared_type"
	KindInvalidFormat   Kind = "invalid_format"
	KindProcessing      Kind = "processing_error"
	KindIO              Kind = "io_failure"
	KindCanceled        Kind = "canceled"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrEmptyBatch      = &Error{Kind: KindEmptyBatch, Index: -1}
	ErrBatchTooLarge   = &Error{Kind: KindBatchTooLarge, Index: -1}
	ErrFileTooLarge    = &Error{Kind: KindFileTooLarge, Index: -1}
	ErrUnsupportedType = &Error{Kind: KindUnsupportedType, Index: -1}
	ErrInvalidFormat   = &Error{Kind: KindInvalidFormat, Index: -1}
	ErrProcessing      = &Error{Kind: KindProcessing, Index: -1}
	ErrIO              = &Error{Kind: KindIO, Index: -1}
	ErrCanceled        = &Error{Kind: KindCanceled, Index: -1}
)

// Error is the single aggregate error a failed batch returns. Index is the
// zero-based position of the asset that triggered the abort, or -1 when the
// whole batch was rejected.
type Error struct {
	Kind  Kind
	Index int
	Name  string
	Err   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Index >= 0 {
		if e.Name != "" {
			msg = fmt.Sprintf("asset %d (%s): %s", e.Index+1, e.Name, msg)
		} else {
			msg = fmt.Sprintf("asset %d: %s", e.Index+1, msg)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "media: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind carried by err, or "" when err is not a media error.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}

func batchError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Index: -1, Err: fmt.Errorf(format, args...)}
}

func assetError(kind Kind, s *StagedAsset, err error) *Error {
	return &Error{Kind: kind, Index: s.Index, Name: s.Name, Err: err}
}

// canceledError converts a context error, keeping errors.Is(err, context.Canceled).
func canceledError(s *StagedAsset, err error) *Error {
	if s == nil {
		return &Error{Kind: KindCanceled, Index: -1, Err: err}
	}
	return assetError(KindCanceled, s, err)
}
