package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wyfcoding/exposure/config"
	"github.com/wyfcoding/exposure/retry"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOClient 实现了 Storage 接口，是对接 MinIO 或 S3 兼容存储系统的具体驱动。
type MinIOClient struct {
	mu     sync.RWMutex
	client *minio.Client
	bucket string // 当前驱动绑定的存储桶名称。
}

// NewMinIOClient 构造一个新的 MinIO 存储驱动，存储桶不存在时创建.
func NewMinIOClient(ctx context.Context, cfg config.MinioConfig) (*MinIOClient, error) {
	client, err := newMinioClient(cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	ok, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.BucketName, err)
	}
	if !ok {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.BucketName, err)
		}
	}

	slog.Info("minio_client initialized", "endpoint", cfg.Endpoint, "bucket", cfg.BucketName)

	return &MinIOClient{
		client: client,
		bucket: cfg.BucketName,
	}, nil
}

func (c *MinIOClient) current() (*minio.Client, string, error) {
	if c == nil {
		return nil, "", errors.New("minio client is nil")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, "", errors.New("minio client not initialized")
	}
	return c.client, c.bucket, nil
}

// Upload 将数据流上传至绑定的存储桶。
func (c *MinIOClient) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	client, bucket, err := c.current()
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = client.PutObject(ctx, bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		slog.Error("minio upload failed", "object", objectName, "error", err)
		return err
	}
	slog.Debug("minio upload successful", "object", objectName, "duration", time.Since(start))
	return nil
}

func (c *MinIOClient) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	client, bucket, err := c.current()
	if err != nil {
		return nil, err
	}
	return client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
}

// Exists 检查对象是否存在.
func (c *MinIOClient) Exists(ctx context.Context, objectName string) (bool, error) {
	client, bucket, err := c.current()
	if err != nil {
		return false, err
	}
	_, err = client.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *MinIOClient) Delete(ctx context.Context, objectName string) error {
	client, bucket, err := c.current()
	if err != nil {
		return err
	}
	return client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{})
}

// UpdateConfig 使用最新配置刷新 MinIO 客户端。
func (c *MinIOClient) UpdateConfig(cfg config.MinioConfig) error {
	if c == nil {
		return errors.New("minio client is nil")
	}
	client, err := newMinioClient(cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.UseSSL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.client = client
	c.bucket = cfg.BucketName
	c.mu.Unlock()

	slog.Info("minio client updated", "endpoint", cfg.Endpoint, "bucket", cfg.BucketName)

	return nil
}

// RegisterReloadHook 注册 MinIO 客户端热更新回调。
func RegisterReloadHook(client *MinIOClient) {
	if client == nil {
		return
	}
	config.RegisterReloadHook(func(updated *config.Config) {
		if updated == nil || updated.Storage.Driver != "minio" {
			return
		}
		if err := client.UpdateConfig(updated.Storage.Minio); err != nil {
			slog.Error("minio client reload failed", "error", err)
		}
	})
}

func newMinioClient(endpoint, accessKeyID, secretAccessKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		slog.Error("failed to create minio client", "endpoint", endpoint, "error", err)
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

// Open 按配置创建 CubeStore.
func Open(ctx context.Context, cfg config.StorageConfig) (CubeStore, error) {
	switch cfg.Driver {
	case "", "file":
		dir := cfg.Dir
		if dir == "" {
			dir = "."
		}
		fsys, err := NewFileStorage(dir)
		if err != nil {
			return nil, err
		}
		return NewJSONStore(fsys), nil
	case "minio":
		mc, err := NewMinIOClient(ctx, cfg.Minio)
		if err != nil {
			return nil, err
		}
		RegisterReloadHook(mc)
		return NewJSONStore(mc, WithRetry(retry.DefaultConfig())), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
