// Package storage 提供模拟结果与随机数立方体的持久化，支持本地文件与 MinIO 两种驱动.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/retry"
	"github.com/wyfcoding/exposure/xerrors"
)

const contentTypeJSON = "application/json"

// Storage 定义了对象存储的通用接口，支持多驱动扩展。
type Storage interface {
	// Upload 上传对象
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error

	// Download 下载对象
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)

	// Exists 对象是否存在
	Exists(ctx context.Context, objectName string) (bool, error)

	// Delete 删除对象
	Delete(ctx context.Context, objectName string) error
}

// CubeStore 立方体与任意 JSON 结果的存取.
type CubeStore interface {
	SaveCube(ctx context.Context, name string, c *cube.Cube) error
	LoadCube(ctx context.Context, name string) (*cube.Cube, error)
	SaveJSON(ctx context.Context, name string, v any) error
	Exists(ctx context.Context, name string) (bool, error)
}

// JSONStore 以 JSON 编码在任意 Storage 驱动上实现 CubeStore.
type JSONStore struct {
	backend Storage
	retry   retry.Config
}

// StoreOption 配置 JSONStore.
type StoreOption func(*JSONStore)

// WithRetry 上传失败时按 cfg 重试.
func WithRetry(cfg retry.Config) StoreOption {
	return func(s *JSONStore) { s.retry = cfg }
}

// NewJSONStore 创建 JSONStore，默认不重试.
func NewJSONStore(backend Storage, opts ...StoreOption) *JSONStore {
	s := &JSONStore{backend: backend, retry: retry.Config{MaxRetries: -1}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveCube 以交换格式写入立方体.
func (s *JSONStore) SaveCube(ctx context.Context, name string, c *cube.Cube) error {
	return s.SaveJSON(ctx, name, c)
}

// LoadCube 读取并校验立方体.
func (s *JSONStore) LoadCube(ctx context.Context, name string) (*cube.Cube, error) {
	rc, err := s.backend.Download(ctx, name)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrNotFound, "download "+name)
	}
	defer rc.Close()

	var c cube.Cube
	if err := json.NewDecoder(rc).Decode(&c); err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrInvalidArg, "decode cube "+name)
	}
	return &c, nil
}

// SaveJSON 写入任意可 JSON 编码的值.
func (s *JSONStore) SaveJSON(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return xerrors.Wrap(err, xerrors.ErrInternal, "encode "+name)
	}
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		err := s.backend.Upload(ctx, name, bytes.NewReader(data), int64(len(data)), contentTypeJSON)
		if ctx.Err() != nil {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return xerrors.Wrap(err, xerrors.ErrInternal, "upload "+name)
	}
	return nil
}

// Exists 对象是否存在.
func (s *JSONStore) Exists(ctx context.Context, name string) (bool, error) {
	return s.backend.Exists(ctx, name)
}
