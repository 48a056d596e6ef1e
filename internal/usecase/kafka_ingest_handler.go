package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	pkgkafka "github.com/MrMerge8/recursive/pkg/kafka"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// KafkaIngestHandler consumes external forecasts from a topic and stores them
// through the same path as the HTTP ingestion endpoint.
type KafkaIngestHandler struct {
	topic    string
	ingest   *IngestService
	validate *validator.Validate
	metrics  domrepo.Metrics
	l        *applogger.Logger
}

func NewKafkaIngestHandler(topic string, ingest *IngestService, metrics domrepo.Metrics, l *applogger.Logger) *KafkaIngestHandler {
	return &KafkaIngestHandler{
		topic:    topic,
		ingest:   ingest,
		validate: validator.New(),
		metrics:  metrics,
		l:        l.With(applogger.String("component", "kafka_ingest"), applogger.String("topic", topic)),
	}
}

func (h *KafkaIngestHandler) Topic() string { return h.topic }

// Handle expects the HTTP ingestion payload. Malformed and invalid payloads
// are permanent failures; storage errors are retried by the consumer.
func (h *KafkaIngestHandler) Handle(ctx context.Context, b []byte) error {
	var req models.IngestPredictionRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("unmarshal ingest message: %w", err))
	}
	if err := defaults.Set(&req); err != nil {
		return pkgkafka.Permanent(err)
	}
	if err := h.validate.StructCtx(ctx, &req); err != nil {
		h.metrics.RecordError("consumer_invalid")
		return pkgkafka.Permanent(fmt.Errorf("invalid ingest message: %w", err))
	}

	res, err := h.ingest.Ingest(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			h.metrics.RecordError("consumer_invalid")
			return pkgkafka.Permanent(err)
		}
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.l.Debug("ingest message stored",
		applogger.String("trace_id", pkgkafka.TraceID(ctx)),
		applogger.Int64("prediction_id", res.PredictionID),
		applogger.String("timeframe", res.Timeframe),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaIngestHandler)(nil)
