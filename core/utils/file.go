package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by SaveLimited when the source exceeds the limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// DownloadFile 下载文件到指定路径
func DownloadFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("下载文件失败: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("下载文件失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("下载文件失败，状态码: %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("保存文件失败: %w", err)
	}
	return nil
}

// SaveLimited copies at most limit bytes of r into a new file at path. If r
// holds more, nothing is left behind and ErrTooLarge is returned.
func SaveLimited(r io.Reader, path string, limit int64) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("创建文件失败: %w", err)
	}

	n, err := io.Copy(out, io.LimitReader(r, limit+1))
	closeErr := out.Close()
	switch {
	case err != nil:
		os.Remove(path)
		return 0, fmt.Errorf("保存文件失败: %w", err)
	case n > limit:
		os.Remove(path)
		return 0, ErrTooLarge
	case closeErr != nil:
		os.Remove(path)
		return 0, fmt.Errorf("保存文件失败: %w", closeErr)
	}
	return n, nil
}

// WithTempDir runs fn inside a fresh directory under base and removes the
// directory afterwards, whatever fn returns.
func WithTempDir(base, pattern string, fn func(dir string) error) error {
	if base != "" {
		if err := os.MkdirAll(base, 0755); err != nil {
			return fmt.Errorf("创建临时目录失败: %w", err)
		}
	}
	dir, err := os.MkdirTemp(base, pattern)
	if err != nil {
		return fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer os.RemoveAll(dir)
	return fn(dir)
}

// SafeExt returns the lower-case extension of name, ignoring any directories
// in it.
func SafeExt(name string) string {
	ext := filepath.Ext(filepath.Base(name))
	out := make([]byte, 0, len(ext))
	for i := 0; i < len(ext); i++ {
		c := ext[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
