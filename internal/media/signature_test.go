package media

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func stagedFile(t *testing.T, data []byte) *StagedAsset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset.upload")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return &StagedAsset{Index: 0, ID: "asset", Name: "upload", Path: path}
}

func TestValidateSignature_Detects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"jpeg", jpegBytes(t, 16, 16, 80), FormatJPEG},
		{"png", pngBytes(t, 16, 16), FormatPNG},
		{"webp", webpBytes(t, 16, 16), FormatWebP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := stagedFile(t, tt.data)
			if err := validateSignature(s); err != nil {
				t.Fatalf("validateSignature: %v", err)
			}
			if s.Format != tt.want {
				t.Errorf("expected %s, got %s", tt.want, s.Format)
			}
			if _, err := os.Stat(s.Path); err != nil {
				t.Errorf("accepted file should remain: %v", err)
			}
		})
	}
}

func TestValidateSignature_RejectsAndRemoves(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"shell script", []byte("#!/bin/sh\necho pwned\n")},
		{"elf", append([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}, bytes.Repeat([]byte{0}, 56)...)},
		{"gif", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := stagedFile(t, tt.data)
			assertKind(t, validateSignature(s), KindInvalidFormat)
			if _, err := os.Stat(s.Path); !os.IsNotExist(err) {
				t.Errorf("rejected file should be removed, stat err=%v", err)
			}
		})
	}
}
