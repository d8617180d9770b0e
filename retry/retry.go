// Package retry 提供带抖动的指数退避重试，用于对象存储等可能瞬时失败的外部调用.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config 重试策略.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
	// MaxRetries 首次调用之外的最大重试次数，小于 0 表示不重试.
	MaxRetries int
}

// DefaultConfig 默认重试配置.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent 标记不应重试的错误.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do 执行 fn 直到成功、遇到 Permanent 错误、重试耗尽或 ctx 结束. 返回的错误保留原始错误链.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	backoff := cfg.InitialBackoff
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= cfg.MaxRetries {
			if attempt == 0 {
				return err
			}
			return fmt.Errorf("retry failed after %d attempts: %w", attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), err))
		case <-time.After(backoff):
		}
		backoff = next(backoff, cfg)
	}
}

func next(backoff time.Duration, cfg Config) time.Duration {
	n := float64(backoff) * cfg.Multiplier
	if cfg.Jitter > 0 {
		n += (rand.Float64()*2 - 1) * cfg.Jitter * n
	}
	if cfg.MaxBackoff > 0 {
		return min(time.Duration(n), cfg.MaxBackoff)
	}
	return time.Duration(n)
}
