// Package logging 提供了统一的结构化日志（slog）封装，支持 OpenTelemetry 追踪上下文注入、日志切割与按标签过滤。
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace" // OpenTelemetry追踪
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// defaultLogger 是全局默认的Logger实例，采用单例模式。
	defaultLogger *Logger
	// once 用于确保InitLogger函数只被执行一次，保证defaultLogger的单例性。
	once sync.Once

	// level 所有由本包创建的 Logger 共享的级别，可在运行时通过 SetLevel 调整。
	level = new(slog.LevelVar)
)

// Config 定义日志配置
type Config struct {
	Service    string
	Module     string
	Level      string
	File       string   // 日志文件路径，为空则只输出到 stdout
	Console    bool     // 配置了 File 时是否同时输出到 stdout
	MaxSize    int      // 每个日志文件最大尺寸 (MB)
	MaxBackups int      // 保留旧日志文件的最大个数
	MaxAge     int      // 保留旧日志文件的最大天数
	Compress   bool     // 是否压缩旧日志
	Tags       []string // 允许输出的标签，"*" 表示全部
	// ConsoleTags 同时输出到 stdout 时控制台的标签允许列表，为空则沿用 Tags
	ConsoleTags []string
}

// Logger 结构体封装了原生的 `*slog.Logger`，并添加了服务名和模块名，方便在日志中区分来源。
type Logger struct {
	*slog.Logger
	Service string // 服务名称
	Module  string // 模块名称
}

// Tagged 返回带有标签的子 Logger，其 Info/Debug 日志只在标签位于允许列表时输出。
func (l *Logger) Tagged(tag string) *Logger {
	return &Logger{
		Logger:  l.With(slog.String(TagKey, tag)),
		Service: l.Service,
		Module:  l.Module,
	}
}

// TraceHandler 是一个自定义的 `slog.Handler` 装饰器，用于从 `context.Context` 中提取并注入 `trace_id` 和 `span_id` 到日志记录中。
type TraceHandler struct {
	slog.Handler
}

// Handle 在处理日志记录之前，尝试从上下文获取 SpanContext，如果有效，则将 trace_id 和 span_id 添加到日志属性中。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 运行时调整日志级别。
func SetLevel(lvl string) {
	level.Set(parseLevel(lvl))
}

// NewFromConfig 创建一个新的Logger实例。
// 支持通过 Config 结构体配置日志切割。
func NewFromConfig(cfg Config) *Logger {
	level.Set(parseLevel(cfg.Level))
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg Config, stdout io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	}

	var sinks []sink

	// 如果配置了文件路径，则使用 lumberjack 进行日志切割
	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
		sinks = append(sinks, newSink(slog.NewJSONHandler(fileWriter, opts), cfg.Tags))
		if cfg.Console {
			consoleTags := cfg.ConsoleTags
			if len(consoleTags) == 0 {
				consoleTags = cfg.Tags
			}
			sinks = append(sinks, newSink(slog.NewJSONHandler(stdout, opts), consoleTags))
		}
	} else {
		sinks = append(sinks, newSink(slog.NewJSONHandler(stdout, opts), cfg.Tags))
	}

	handler := newTagHandler(sinks...)

	logger := slog.New(&TraceHandler{Handler: handler}).With(
		slog.String("service", cfg.Service),
		slog.String("module", cfg.Module),
	)

	return &Logger{
		Logger:  logger,
		Service: cfg.Service,
		Module:  cfg.Module,
	}
}

// NewLogger 是创建一个带有简单参数的 logger 的兼容别名。
func NewLogger(service, module string, lvl ...string) *Logger {
	l := "info"
	if len(lvl) > 0 {
		l = lvl[0]
	}
	return NewFromConfig(Config{
		Service: service,
		Module:  module,
		Level:   l,
		Tags:    []string{AllTags},
	})
}

// InitLogger 以给定配置初始化全局默认日志记录器，只有第一次调用生效。
func InitLogger(cfg Config) *Logger {
	initDefault(cfg)
	return defaultLogger
}

// Default 返回默认日志记录器实例，未初始化时以默认配置初始化。
func Default() *Logger {
	initDefault(Config{Service: "default", Module: "default", Level: "info", Tags: []string{AllTags}})
	return defaultLogger
}

func initDefault(cfg Config) {
	once.Do(func() {
		defaultLogger = NewFromConfig(cfg)
		slog.SetDefault(defaultLogger.Logger)
	})
}

// Info 记录 Info 级别日志
func Info(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(ctx, msg, args...)
}

// Warn 记录 Warn 级别日志
func Warn(ctx context.Context, msg string, args ...any) {
	Default().WarnContext(ctx, msg, args...)
}

// Error 记录 Error 级别日志
func Error(ctx context.Context, msg string, args ...any) {
	Default().ErrorContext(ctx, msg, args...)
}

// Debug 记录 Debug 级别日志
func Debug(ctx context.Context, msg string, args ...any) {
	Default().DebugContext(ctx, msg, args...)
}

// LogDuration 记录操作耗时
func LogDuration(ctx context.Context, l *Logger, operation string, args ...any) func() {
	start := time.Now()
	return func() {
		logArgs := append(args, "duration", time.Since(start))
		l.InfoContext(ctx, fmt.Sprintf("%s finished", operation), logArgs...)
	}
}
