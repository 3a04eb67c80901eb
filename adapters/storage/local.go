// Package storage provides StorageAdapter implementations for exported mockups.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
)

// Local stores images on the local filesystem.
type Local struct {
	rootDir     string
	permissions os.FileMode
}

var _ core.StorageAdapter = (*Local)(nil)

// NewLocal creates a Local storage adapter rooted at dir.
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: mkdir %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	return &Local{rootDir: abs, permissions: perm}, nil
}

// absPath maps Bucket to a subdirectory and Path to a file beneath it.
// Keys that would escape the root are rejected.
func (l *Local) absPath(key core.StorageKey) (string, error) {
	if key.Path == "" {
		return "", apperrors.New(apperrors.CategoryInput, "local.key", apperrors.ErrEmptyInput)
	}
	p := filepath.Join(l.rootDir, filepath.FromSlash(key.Bucket), filepath.FromSlash(key.Path))
	if p != l.rootDir && !strings.HasPrefix(p, l.rootDir+string(filepath.Separator)) {
		return "", apperrors.New(apperrors.CategoryInput, "local.key", fmt.Errorf("key %q escapes root", key.Path))
	}
	return p, nil
}

// Put writes through a temporary file so readers never observe partial output.
func (l *Local) Put(ctx context.Context, key core.StorageKey, r io.Reader, meta map[string]string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.mkdir", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.open", err)
	}
	defer os.Remove(tmp.Name())

	if _, err = io.Copy(tmp, r); err != nil {
		tmp.Close()
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.copy", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.close", err)
	}
	if err := os.Chmod(tmp.Name(), l.permissions); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.chmod", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.rename", err)
	}

	// Persist metadata as a side-car JSON file.
	if len(meta) > 0 {
		data, err := json.Marshal(meta)
		if err == nil {
			_ = os.WriteFile(path+".meta.json", data, l.permissions)
		}
	}
	return nil
}

func (l *Local) Get(ctx context.Context, key core.StorageKey) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.get", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryStorage, "local.get", apperrors.ErrNotFound)
		}
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.get.open", err)
	}
	return f, nil
}

// Meta returns the side-car metadata written by Put, or nil.
func (l *Local) Meta(key core.StorageKey) map[string]string {
	path, err := l.absPath(key)
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(path + ".meta.json")
	if err != nil {
		return nil
	}
	var meta map[string]string
	if json.Unmarshal(data, &meta) != nil {
		return nil
	}
	return meta
}

func (l *Local) Delete(ctx context.Context, key core.StorageKey) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.delete", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.delete", err)
	}
	_ = os.Remove(path + ".meta.json")
	return nil
}

func (l *Local) Exists(ctx context.Context, key core.StorageKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.Wrap(apperrors.CategoryStorage, "local.exists", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, apperrors.Wrap(apperrors.CategoryStorage, "local.exists.stat", err)
}
