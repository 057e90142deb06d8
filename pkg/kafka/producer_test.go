package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("zstd"))
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestPublishEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	at := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	p := &Producer{writer: w, now: func() time.Time { return at }}

	require.NoError(t, p.Publish(context.Background(), "outcomes", []byte("k"), map[string]int{"n": 1}))
	require.NoError(t, p.Publish(context.Background(), "outcomes", nil, "raw"))
	require.Len(t, w.msgs, 2)
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, at, w.msgs[0].Time)
	assert.Equal(t, "outcomes", w.msgs[0].Topic)

	w.err = errors.New("leader not available")
	assert.ErrorContains(t, p.Publish(context.Background(), "outcomes", nil, []byte("x")), "leader not available")
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Gzip, parseCompression("unknown"))
}
