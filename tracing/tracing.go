// Package tracing 敞口计算的链路追踪：一次运行一个根 Span，其下为各产品的估值与 LSM 反向归纳.
// 运行 ID 以 baggage 形式随 context 传递，本包创建的每个 Span 都带上它，发布到 Kafka 的消息头也会携带.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/exposure/config"
)

const tracerName = "github.com/wyfcoding/exposure"

// Span 属性键.
const (
	RunIDKey          = attribute.Key("exposure.run_id")
	InstrumentKey     = attribute.Key("exposure.instrument")
	InstrumentTypeKey = attribute.Key("exposure.instrument_type")
	PathsKey          = attribute.Key("exposure.paths")
	DatesKey          = attribute.Key("exposure.dates")
	LSMDateKey        = attribute.Key("exposure.lsm.date")
	InTheMoneyKey     = attribute.Key("exposure.lsm.itm")
	ExercisableKey    = attribute.Key("exposure.lsm.exercisable")
	ExercisedKey      = attribute.Key("exposure.lsm.exercised")
)

// runIDMember baggage 中的运行 ID 成员名.
const runIDMember = "run_id"

// InitTracer 按配置初始化全局 TracerProvider. 未启用时仅设置传播器并返回空操作的 shutdown.
func InitTracer(cfg config.TracingConfig, service string) (shutdown func(context.Context) error, err error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	ctx := context.Background()
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(service)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	slog.Info("tracer provider initialized", "service", service, "endpoint", cfg.OTLPEndpoint, "ratio", cfg.SampleRatio)
	return tp.Shutdown, nil
}

// WithRunID 把运行 ID 放入 context 的 baggage.
func WithRunID(ctx context.Context, runID string) context.Context {
	m, err := baggage.NewMemberRaw(runIDMember, runID)
	if err != nil {
		return ctx
	}
	b, err := baggage.FromContext(ctx).SetMember(m)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, b)
}

// RunID 从 context 取出运行 ID，无则为空.
func RunID(ctx context.Context) string {
	return baggage.FromContext(ctx).Member(runIDMember).Value()
}

// start 创建 Span 并附上运行 ID，调用方负责 End.
func start(ctx context.Context, name string, attrs []attribute.KeyValue, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := RunID(ctx); id != "" {
		attrs = append(attrs, RunIDKey.String(id))
	}
	opts = append(opts, trace.WithAttributes(attrs...))
	return otel.Tracer(tracerName).Start(ctx, name, opts...) //nolint:spancheck // 由调用方 End.
}

// StartRun 一次敞口计算的根 Span.
func StartRun(ctx context.Context, runID string, paths, dates int) (context.Context, trace.Span) {
	ctx = WithRunID(ctx, runID)
	return start(ctx, "exposure.Run", []attribute.KeyValue{PathsKey.Int(paths), DatesKey.Int(dates)})
}

// StartInstrument 单个产品估值的 Span.
func StartInstrument(ctx context.Context, name, typ string) (context.Context, trace.Span) {
	return start(ctx, "instrument.ComputeValues", []attribute.KeyValue{
		InstrumentKey.String(name),
		InstrumentTypeKey.String(typ),
	})
}

// StartLSM 一次 LSM 反向归纳的 Span.
func StartLSM(ctx context.Context, instrument string, dates, paths int) (context.Context, trace.Span) {
	return start(ctx, "lsm.Run", []attribute.KeyValue{
		InstrumentKey.String(instrument),
		DatesKey.Int(dates),
		PathsKey.Int(paths),
	})
}

// StartPublish 向 topic 发布结果的生产者 Span.
func StartPublish(ctx context.Context, topic string, count int) (context.Context, trace.Span) {
	return start(ctx, "kafka.PublishProfiles", []attribute.KeyValue{
		attribute.String("messaging.destination", topic),
		attribute.Int("messaging.batch.message_count", count),
	}, trace.WithSpanKind(trace.SpanKindProducer))
}

// LSMDateProcessed 在当前 Span 上记录一个决策日期的处理结果.
func LSMDateProcessed(ctx context.Context, date float64, itm int, exercisable bool) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("lsm.date", trace.WithAttributes(
		LSMDateKey.Float64(date),
		InTheMoneyKey.Int(itm),
		ExercisableKey.Bool(exercisable),
	))
}

// SetAttributes 为当前 Span 追加属性.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// SetError 记录错误并将 Span 状态置为 Error.
func SetError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID 当前链路的追踪 ID，无则为空.
func TraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// InjectContext 将追踪上下文与 baggage 序列化为键值对，用于消息头.
func InjectContext(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}
