// Package publisher 将敞口曲线以事件形式发布到 Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/wyfcoding/exposure/config"
	"github.com/wyfcoding/exposure/logging"
	"github.com/wyfcoding/exposure/metrics"
	"github.com/wyfcoding/exposure/simulation"
	"github.com/wyfcoding/exposure/tracing"
	"github.com/wyfcoding/exposure/xerrors"
)

// ProfileEvent 一条敞口曲线事件.
type ProfileEvent struct {
	EventID     string             `json:"event_id"`
	RunID       string             `json:"run_id"`
	PublishedAt time.Time          `json:"published_at"`
	Profile     simulation.Profile `json:"profile"`
}

// Publisher 敞口曲线发布者.
type Publisher interface {
	PublishProfiles(ctx context.Context, runID string, profiles []simulation.Profile) error
	Close() error
}

// NewRunID 生成一次运行的唯一标识.
func NewRunID() string { return uuid.NewString() }

// messageWriter kafkago.Writer 的最小子集.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher 每个产品一条消息，以产品名为键，同一产品落在同一分区.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewKafkaPublisher 按配置创建发布者.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logging.Logger, m *metrics.Metrics) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  5,
		RequiredAcks: kafkago.RequiredAcks(cfg.RequiredAcks),
		Async:        cfg.Async,
	}
	return newKafkaPublisher(w, cfg.Topic, logger, m)
}

func newKafkaPublisher(w messageWriter, topic string, logger *logging.Logger, m *metrics.Metrics) *KafkaPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger.Tagged("publisher"), metrics: m}
}

// PublishProfiles 批量写入全部曲线，并在消息头中注入追踪上下文.
func (p *KafkaPublisher) PublishProfiles(ctx context.Context, runID string, profiles []simulation.Profile) error {
	ctx = tracing.WithRunID(ctx, runID)
	ctx, span := tracing.StartPublish(ctx, p.topic, len(profiles))
	defer span.End()

	msgs, err := buildMessages(ctx, runID, profiles, time.Now())
	if err != nil {
		tracing.SetError(ctx, err)
		return err
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.count("failed", len(msgs))
		tracing.SetError(ctx, err)
		p.logger.ErrorContext(ctx, "failed to publish profiles", "topic", p.topic, "error", err)
		return xerrors.Wrap(err, xerrors.ErrInternal, "publish profiles")
	}

	p.count("success", len(msgs))
	p.logger.InfoContext(ctx, "profiles published", "topic", p.topic, "run_id", runID, "count", len(msgs))
	return nil
}

func (p *KafkaPublisher) count(status string, n int) {
	if p.metrics != nil {
		p.metrics.ProfilesPublished.WithLabelValues(status).Add(float64(n))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessages(ctx context.Context, runID string, profiles []simulation.Profile, now time.Time) ([]kafkago.Message, error) {
	carrier := tracing.InjectContext(ctx)
	headers := make([]kafkago.Header, 0, len(carrier)+1)
	for k, v := range carrier {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers, kafkago.Header{Key: "run_id", Value: []byte(runID)})

	msgs := make([]kafkago.Message, 0, len(profiles))
	for _, prof := range profiles {
		value, err := json.Marshal(ProfileEvent{
			EventID:     uuid.NewString(),
			RunID:       runID,
			PublishedAt: now,
			Profile:     prof,
		})
		if err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrInternal, "encode profile "+prof.Instrument)
		}
		msgs = append(msgs, kafkago.Message{
			Key:     []byte(prof.Instrument),
			Value:   value,
			Headers: headers,
			Time:    now,
		})
	}
	return msgs, nil
}

// NopPublisher 未启用发布时使用.
type NopPublisher struct{}

func (NopPublisher) PublishProfiles(context.Context, string, []simulation.Profile) error { return nil }
func (NopPublisher) Close() error                                                         { return nil }

// New 按配置返回 Kafka 发布者或空发布者.
func New(cfg config.KafkaConfig, logger *logging.Logger, m *metrics.Metrics) Publisher {
	if !cfg.Enabled {
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg, logger, m)
}
