// Package fileutil writes files so readers never observe partial content:
// bytes land in a staging file on the same filesystem, are fsynced and then
// renamed over the destination.
package fileutil

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Digest describes content written by WriteAtomic or CopyAtomic.
type Digest struct {
	Size     int64
	Checksum string
}

// WriteAtomic writes data to dst through a temporary file in stagingDir.
// stagingDir must be on the same filesystem as dst.
func WriteAtomic(stagingDir, dst string, data []byte, mode os.FileMode) (Digest, error) {
	return writeAtomic(stagingDir, dst, bytes.NewReader(data), int64(len(data)), mode)
}

// CopyAtomic streams src into dst through a temporary file in stagingDir.
// The copy is removed if the bytes written do not match the source size.
func CopyAtomic(stagingDir, src, dst string, mode os.FileMode) (Digest, error) {
	in, err := os.Open(src)
	if err != nil {
		return Digest{}, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return Digest{}, fmt.Errorf("stat source: %w", err)
	}
	return writeAtomic(stagingDir, dst, in, info.Size(), mode)
}

func writeAtomic(stagingDir, dst string, r io.Reader, expected int64, mode os.FileMode) (Digest, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return Digest{}, fmt.Errorf("create staging dir: %w", err)
	}
	tmp, err := os.CreateTemp(stagingDir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return Digest{}, fmt.Errorf("create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	hasher := blake3.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		return Digest{}, fmt.Errorf("write staging file: %w", err)
	}
	if written != expected {
		return Digest{}, fmt.Errorf("copy size mismatch: expected %d bytes, wrote %d bytes", expected, written)
	}
	if err := tmp.Chmod(mode); err != nil {
		return Digest{}, fmt.Errorf("chmod staging file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return Digest{}, fmt.Errorf("sync staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Digest{}, fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return Digest{}, fmt.Errorf("rename into place: %w", err)
	}
	committed = true

	if err := SyncDir(filepath.Dir(dst)); err != nil {
		return Digest{}, err
	}
	return Digest{Size: written, Checksum: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// Checksum returns the blake3 hex digest of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// SyncDir flushes directory metadata so a completed rename survives a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
