package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	pkgkafka "github.com/MrMerge8/recursive/pkg/kafka"
)

// producer is the subset of *pkgkafka.Producer the publisher needs.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// ResolvedEvent is the payload emitted for every resolved prediction.
type ResolvedEvent struct {
	Timeframe        string           `json:"timeframe"`
	PredictionID     int64            `json:"prediction_id"`
	Timestamp        time.Time        `json:"timestamp"`
	Source           string           `json:"source"`
	CurrentPrice     float64          `json:"current_price"`
	Direction        models.Direction `json:"direction"`
	Target           float64          `json:"target"`
	Confidence       int              `json:"confidence"`
	ActualPrice      float64          `json:"actual_price"`
	ActualDirection  models.Direction `json:"actual_direction"`
	DirectionCorrect bool             `json:"direction_correct"`
	TargetErrorPct   float64          `json:"target_error_pct"`
	CalibrationScore float64          `json:"calibration_score"`
	TraceID          string           `json:"trace_id,omitempty"`
}

// ConsensusEvent is the payload emitted for every scored two-model cycle.
type ConsensusEvent struct {
	Timeframe string                  `json:"timeframe"`
	Outcome   models.ConsensusOutcome `json:"outcome"`
	TraceID   string                  `json:"trace_id,omitempty"`
}

// KafkaPublisher implements EventPublisher for Kafka.
type KafkaPublisher struct {
	producer       producer
	resolvedTopic  string
	consensusTopic string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(p *pkgkafka.Producer, resolvedTopic, consensusTopic string) *KafkaPublisher {
	return newKafkaPublisher(p, resolvedTopic, consensusTopic)
}

func newKafkaPublisher(p producer, resolvedTopic, consensusTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, resolvedTopic: resolvedTopic, consensusTopic: consensusTopic}
}

var _ domrepo.EventPublisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) PublishResolved(ctx context.Context, tf domrepo.Timeframe, pred *models.Prediction) error {
	ev := ResolvedEvent{
		Timeframe:        string(tf),
		PredictionID:     pred.ID,
		Timestamp:        pred.Timestamp,
		Source:           pred.Source,
		CurrentPrice:     pred.CurrentPrice,
		Direction:        pred.PredictedDirection,
		Target:           pred.PredictedTarget,
		Confidence:       pred.Confidence,
		ActualPrice:      pred.Actual(),
		ActualDirection:  pred.ActualDir(),
		DirectionCorrect: pred.Correct(),
		TargetErrorPct:   pred.ErrorPct(),
		TraceID:          pkgkafka.TraceID(ctx),
	}
	if pred.CalibrationScore != nil {
		ev.CalibrationScore = *pred.CalibrationScore
	}
	return p.producer.Publish(ctx, p.resolvedTopic, eventKey(tf, pred.ID), ev)
}

func (p *KafkaPublisher) PublishConsensus(ctx context.Context, tf domrepo.Timeframe, o *models.ConsensusOutcome) error {
	ev := ConsensusEvent{Timeframe: string(tf), Outcome: *o, TraceID: pkgkafka.TraceID(ctx)}
	return p.producer.Publish(ctx, p.consensusTopic, eventKey(tf, o.PredictionID), ev)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// eventKey keeps every event of one prediction on one partition.
func eventKey(tf domrepo.Timeframe, id int64) []byte {
	return []byte(string(tf) + ":" + strconv.FormatInt(id, 10))
}
