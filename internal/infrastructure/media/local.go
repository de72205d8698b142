// Package media stores uploaded and generated binaries (voice notes, images, speech).
package media

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ngoclaw/aichat/internal/domain/service"
)

// LocalStore 本地文件系统媒体存储，文件通过 HTTP 静态路由 baseURL 暴露
type LocalStore struct {
	dir     string
	baseURL string
}

var _ service.MediaStore = (*LocalStore)(nil)

// NewLocalStore 创建本地存储，目录不存在时自动创建
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir 存储根目录
func (s *LocalStore) Dir() string { return s.dir }

// BaseURL 静态路由前缀
func (s *LocalStore) BaseURL() string { return s.baseURL }

// Put 写入文件并返回 URL
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	return s.baseURL + "/" + clean, nil
}
