package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FileStorage 以本地目录为根的 Storage 驱动，对象名即相对路径.
type FileStorage struct {
	root string
}

// NewFileStorage 创建本地目录驱动，目录不存在时自动创建.
func NewFileStorage(root string) (*FileStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	slog.Info("file storage initialized", "root", root)
	return &FileStorage{root: root}, nil
}

func (f *FileStorage) path(objectName string) string {
	if filepath.IsAbs(objectName) {
		return objectName
	}
	return filepath.Join(f.root, filepath.FromSlash(objectName))
}

// Upload 先写临时文件再原子替换.
func (f *FileStorage) Upload(ctx context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	dst := f.path(objectName)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return err
	}
	slog.Debug("file upload successful", "object", objectName, "duration", time.Since(start))
	return nil
}

func (f *FileStorage) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(f.path(objectName))
}

// Exists 检查对象是否存在.
func (f *FileStorage) Exists(_ context.Context, objectName string) (bool, error) {
	_, err := os.Stat(f.path(objectName))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (f *FileStorage) Delete(_ context.Context, objectName string) error {
	err := os.Remove(f.path(objectName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
