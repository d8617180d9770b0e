package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/exposure/config"
	"github.com/wyfcoding/exposure/simulation"
	"github.com/wyfcoding/exposure/xerrors"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testProfiles() []simulation.Profile {
	return []simulation.Profile{
		{Instrument: "swap-a", Quantile: 0.95, Dates: []float64{0, 1}, EE: []float64{1, 2}, ENE: []float64{0, -1}, PFE: []float64{3, 4}},
		{Instrument: "swap-b", Quantile: 0.95, Dates: []float64{0, 1}, EE: []float64{0, 0}, ENE: []float64{-2, -2}, PFE: []float64{0, 0}},
	}
}

func TestBuildMessages(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msgs, err := buildMessages(context.Background(), "run-1", testProfiles(), now)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "swap-a", string(msgs[0].Key))
	assert.Equal(t, "swap-b", string(msgs[1].Key))
	assert.Equal(t, now, msgs[0].Time)

	var runHeader string
	for _, h := range msgs[0].Headers {
		if h.Key == "run_id" {
			runHeader = string(h.Value)
		}
	}
	assert.Equal(t, "run-1", runHeader)

	var ev ProfileEvent
	require.NoError(t, json.Unmarshal(msgs[0].Value, &ev))
	assert.Equal(t, "run-1", ev.RunID)
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, "swap-a", ev.Profile.Instrument)
	assert.Equal(t, []float64{3, 4}, ev.Profile.PFE)
	assert.True(t, now.Equal(ev.PublishedAt))
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "exposure.profiles", nil, nil)

	require.NoError(t, p.PublishProfiles(context.Background(), NewRunID(), testProfiles()))
	assert.Len(t, w.msgs, 2)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWriteError(t *testing.T) {
	cause := errors.New("broker down")
	p := newKafkaPublisher(&fakeWriter{err: cause}, "exposure.profiles", nil, nil)

	err := p.PublishProfiles(context.Background(), "run-1", testProfiles())
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	e, ok := xerrors.FromError(err)
	require.True(t, ok)
	assert.Equal(t, xerrors.ErrInternal, e.Type)
}

func TestNewRunIDUnique(t *testing.T) {
	assert.NotEqual(t, NewRunID(), NewRunID())
}

func TestNew(t *testing.T) {
	p := New(config.KafkaConfig{Enabled: false}, nil, nil)
	_, ok := p.(NopPublisher)
	assert.True(t, ok)
	assert.NoError(t, p.PublishProfiles(context.Background(), "run", testProfiles()))

	p = New(config.KafkaConfig{Enabled: true, Topic: "t", Brokers: []string{"localhost:9092"}, WriteTimeout: time.Second, RequiredAcks: -1}, nil, nil)
	_, ok = p.(*KafkaPublisher)
	assert.True(t, ok)
	assert.NoError(t, p.Close())
}
