package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// PermanentError marks a handler failure that retrying cannot fix, such as a
// malformed payload. The message goes straight to the DLQ.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the consumer does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads registered topics in a consumer group. Messages of one
// partition always go to the same worker, so per-partition order and offset
// commits are preserved.
type Consumer struct {
	cfg       ConsumerConfig
	handlers  map[string]MessageHandler
	readers   map[string]reader
	newReader func(topic string) reader
	dlq       writer
	hook      ConsumerHook
	l         *applogger.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:     "recursive",
		WorkerCount: 1,
		RetryMax:    3,
		BackoffMin:  100 * time.Millisecond,
		BackoffMax:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.Nop()
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]reader),
		hook:     TraceHook(),
		l:        cfg.Logger.With(applogger.String("component", "kafka_consumer")),
	}
	c.newReader = func(topic string) reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 1 << 20,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	initConsumerMetrics()
	return c, nil
}

// RegisterHandler registers a message handler for its topic. Must be called
// before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.l.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook replaces the default trace hook.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start launches one fetch loop and WorkerCount workers per topic.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	for topic, h := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r

		queues := make([]chan kafka.Message, c.cfg.WorkerCount)
		for i := range queues {
			queues[i] = make(chan kafka.Message, 1)
			c.wg.Add(1)
			go c.work(ctx, h, r, queues[i])
		}
		c.wg.Add(1)
		go c.fetch(ctx, topic, r, queues)
	}
	c.l.Info("kafka consumer started", applogger.Int("topics", len(c.handlers)), applogger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop cancels fetching, waits for in-flight handlers and closes the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.l.Error("close reader failed", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.l.Error("close dlq writer failed", applogger.Error(err))
			}
		}
	})
	return stopErr
}

func (c *Consumer) fetch(ctx context.Context, topic string, r reader, queues []chan kafka.Message) {
	defer c.wg.Done()
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()

	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.l.Error("fetch message failed", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.BackoffMin):
			}
			continue
		}
		select {
		case queues[km.Partition%len(queues)] <- km:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context, h MessageHandler, r reader, in <-chan kafka.Message) {
	defer c.wg.Done()
	for km := range in {
		c.process(ctx, h, r, km)
	}
}

// process handles one message with retries. Failed messages are committed
// only after a successful DLQ write, so without a DLQ they are redelivered
// after a restart.
func (c *Consumer) process(ctx context.Context, h MessageHandler, r reader, km kafka.Message) {
	start := time.Now()
	topic := h.Topic()

	err := c.handle(ctx, h, km)
	result := "ok"
	if err != nil {
		result = "failed"
		c.hook.OnError(ctx, topic, km, km.Value, err)
		c.l.Error("handle message failed",
			applogger.String("topic", topic),
			applogger.Int64("offset", km.Offset),
			applogger.Bool("permanent", IsPermanent(err)),
			applogger.Error(err),
		)
		if !c.deadLetter(ctx, topic, km, err) {
			observeHandled(topic, result, time.Since(start))
			return
		}
		result = "dead_lettered"
	}

	if err := c.commit(ctx, r, km); err != nil {
		c.l.Error("commit failed", applogger.String("topic", topic), applogger.Error(err))
	}
	observeHandled(topic, result, time.Since(start))
}

func (c *Consumer) handle(ctx context.Context, h MessageHandler, km kafka.Message) error {
	topic := h.Topic()
	hctx, hmsg, data, err := c.hook.BeforeHandle(ctx, topic, km, km.Value)
	if err != nil {
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.backOff(), uint64(c.cfg.RetryMax)), ctx)
	return backoff.RetryNotify(func() error {
		err := safeHandle(hctx, h, data)
		c.hook.AfterHandle(hctx, topic, hmsg, data, err)
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.l.Warn("retrying message", applogger.String("topic", topic), applogger.Duration("wait", wait), applogger.Error(err))
	})
}

func (c *Consumer) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BackoffMin
	b.MaxInterval = c.cfg.BackoffMax
	b.MaxElapsedTime = 0
	return b
}

// safeHandle converts a handler panic into a permanent error.
func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) deadLetter(ctx context.Context, topic string, km kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   km.Key,
		Value: km.Value,
		Time:  time.Now(),
		Headers: append(km.Headers,
			kafka.Header{Key: "source_topic", Value: []byte(topic)},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	})
	if err != nil {
		c.l.Error("dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(ctx context.Context, r reader, km kafka.Message) error {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 2)
	return backoff.Retry(func() error {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		return r.CommitMessages(cctx, km)
	}, policy)
}

var (
	consumerHandledTotal  *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerOnce          sync.Once
)

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerHandledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "recursive_kafka_consumer_messages_total", Help: "Consumed messages by result"},
			[]string{"topic", "result"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "recursive_kafka_consumer_handle_seconds", Help: "Handling time per message, retries included"},
			[]string{"topic"},
		)
	})
}

func observeHandled(topic, result string, dur time.Duration) {
	if consumerHandledTotal == nil {
		return
	}
	consumerHandledTotal.WithLabelValues(topic, result).Inc()
	consumerHandleLatency.WithLabelValues(topic).Observe(dur.Seconds())
}
