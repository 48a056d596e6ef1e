package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		r.mu.Lock()
		if len(r.pending) > 0 {
			m := r.pending[0]
			r.pending = r.pending[1:]
			r.mu.Unlock()
			return m, nil
		}
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type scriptedHandler struct {
	mu    sync.Mutex
	calls int
	seen  []string
	fn    func(call int) error
}

func (h *scriptedHandler) Topic() string { return "prediction.ingest" }

func (h *scriptedHandler) Handle(ctx context.Context, data []byte) error {
	h.mu.Lock()
	h.calls++
	call := h.calls
	h.seen = append(h.seen, TraceID(ctx))
	h.mu.Unlock()
	if h.fn == nil {
		return nil
	}
	return h.fn(call)
}

func newTestConsumer(t *testing.T, dlq *fakeWriter) *Consumer {
	t.Helper()
	opts := []ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	}
	if dlq != nil {
		opts = append(opts, WithConsumerDLQ("prediction.dlq"))
	}
	c, err := NewConsumer(opts...)
	require.NoError(t, err)
	if dlq != nil {
		c.dlq = dlq
	}
	return c
}

func TestConsumerCommitsHandledMessage(t *testing.T) {
	c := newTestConsumer(t, nil)
	r := &fakeReader{}
	h := &scriptedHandler{}

	c.process(context.Background(), h, r, kafka.Message{
		Offset:  7,
		Key:     []byte("5:1"),
		Headers: []kafka.Header{{Key: "trace_id", Value: []byte("cycle-1")}},
	})

	assert.Equal(t, []int64{7}, r.commits())
	assert.Equal(t, []string{"cycle-1"}, h.seen)
}

func TestConsumerRetriesTransientFailures(t *testing.T) {
	c := newTestConsumer(t, nil)
	r := &fakeReader{}
	h := &scriptedHandler{fn: func(call int) error {
		if call < 3 {
			return errors.New("store busy")
		}
		return nil
	}}

	c.process(context.Background(), h, r, kafka.Message{Offset: 1})

	assert.Equal(t, 3, h.calls)
	assert.Equal(t, []int64{1}, r.commits())
}

func TestConsumerPermanentFailureGoesToDLQ(t *testing.T) {
	dlq := &fakeWriter{}
	c := newTestConsumer(t, dlq)
	r := &fakeReader{}
	h := &scriptedHandler{fn: func(int) error { return Permanent(errors.New("bad payload")) }}

	c.process(context.Background(), h, r, kafka.Message{Offset: 4, Value: []byte("{")})

	assert.Equal(t, 1, h.calls)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "prediction.dlq", dlq.msgs[0].Topic)
	assert.Equal(t, []byte("{"), dlq.msgs[0].Value)
	assert.Equal(t, []int64{4}, r.commits())
}

func TestConsumerWithoutDLQLeavesFailureUncommitted(t *testing.T) {
	c := newTestConsumer(t, nil)
	r := &fakeReader{}
	h := &scriptedHandler{fn: func(int) error { return errors.New("down") }}

	c.process(context.Background(), h, r, kafka.Message{Offset: 2})

	assert.Equal(t, 3, h.calls)
	assert.Empty(t, r.commits())
}

func TestConsumerFailedDLQWriteLeavesUncommitted(t *testing.T) {
	dlq := &fakeWriter{err: errors.New("broker gone")}
	c := newTestConsumer(t, dlq)
	r := &fakeReader{}
	h := &scriptedHandler{fn: func(int) error { return Permanent(errors.New("bad")) }}

	c.process(context.Background(), h, r, kafka.Message{Offset: 3})

	assert.Empty(t, r.commits())
}

func TestConsumerRecoversHandlerPanic(t *testing.T) {
	dlq := &fakeWriter{}
	c := newTestConsumer(t, dlq)
	r := &fakeReader{}
	h := &scriptedHandler{fn: func(int) error { panic("boom") }}

	c.process(context.Background(), h, r, kafka.Message{Offset: 9})

	assert.Equal(t, 1, h.calls)
	assert.Len(t, dlq.msgs, 1)
	assert.Equal(t, []int64{9}, r.commits())
}

func TestConsumerStartStop(t *testing.T) {
	c := newTestConsumer(t, nil)
	r := &fakeReader{pending: []kafka.Message{
		{Partition: 0, Offset: 10},
		{Partition: 0, Offset: 11},
	}}
	c.newReader = func(string) reader { return r }
	h := &scriptedHandler{}

	require.Error(t, c.Start())
	c.RegisterHandler(h)
	require.NoError(t, c.Start())

	assert.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{10, 11}, r.commits())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	assert.True(t, r.closed)
	require.NoError(t, c.Stop(ctx))
}

func TestProducerSetsTraceHeader(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}

	ctx := WithTraceID(context.Background(), "cycle-3")
	require.NoError(t, p.Publish(ctx, "prediction.resolved", []byte("5:3"), map[string]int{"id": 3}))

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, "prediction.resolved", m.Topic)
	assert.JSONEq(t, `{"id":3}`, string(m.Value))
	assert.Equal(t, []kafka.Header{{Key: "trace_id", Value: []byte("cycle-3")}}, m.Headers)
	assert.Equal(t, "cycle-3", ExtractTraceID(m))
}

func TestProducerWrapsWriteError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("leader not available")}}
	err := p.Publish(context.Background(), "consensus.outcome", nil, []byte("{}"))
	assert.ErrorContains(t, err, "publish consensus.outcome")
}
