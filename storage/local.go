package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore keeps assets as files in one directory, named by sound id.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sounds directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// resolve maps a reference to a file directly inside the store directory.
// Only the base name is used, so references cannot escape it.
func (s *LocalStore) resolve(ref string) (string, error) {
	name := filepath.Base(filepath.Clean(strings.TrimSpace(ref)))
	if name == "." || name == ".." || name == string(filepath.Separator) || ref == "" {
		return "", fmt.Errorf("invalid asset reference %q", ref)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *LocalStore) Put(ctx context.Context, id, localPath string) (string, error) {
	dest := filepath.Join(s.dir, assetName(id))
	if err := os.Rename(localPath, dest); err == nil {
		return dest, nil
	}

	// 跨设备时退化为复制
	if err := copyFile(localPath, dest); err != nil {
		os.Remove(dest)
		return "", err
	}
	os.Remove(localPath)
	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy asset: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync asset: %w", err)
	}
	return out.Close()
}

func (s *LocalStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open asset %s: %w", ref, err)
	}
	return f, nil
}

func (s *LocalStore) Remove(ctx context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove asset %s: %w", ref, err)
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}
	var out []ObjectInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ObjectInfo{Key: e.Name(), Size: info.Size(), LastModified: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
