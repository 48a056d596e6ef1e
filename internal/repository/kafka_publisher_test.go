package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	pkgkafka "github.com/MrMerge8/recursive/pkg/kafka"
)

type sentMessage struct {
	topic string
	key   string
	value interface{}
}

type fakeProducer struct {
	sent   []sentMessage
	err    error
	closed bool
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{topic: topic, key: string(key), value: value})
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherResolved(t *testing.T) {
	fp := &fakeProducer{}
	p := newKafkaPublisher(fp, "prediction.resolved", "consensus.outcome")
	ctx := pkgkafka.WithTraceID(context.Background(), "cycle-9")

	rec := resolvedRecord()
	require.NoError(t, p.PublishResolved(ctx, domrepo.TF5, &rec.Prediction))
	require.Len(t, fp.sent, 1)
	assert.Equal(t, "prediction.resolved", fp.sent[0].topic)
	assert.Equal(t, "5:7", fp.sent[0].key)

	ev, ok := fp.sent[0].value.(ResolvedEvent)
	require.True(t, ok)
	assert.Equal(t, "cycle-9", ev.TraceID)
	assert.True(t, ev.DirectionCorrect)
	assert.Equal(t, 50300.0, ev.ActualPrice)
	assert.InDelta(t, 0.72, ev.CalibrationScore, 1e-9)
}

func TestKafkaPublisherConsensus(t *testing.T) {
	fp := &fakeProducer{}
	p := newKafkaPublisher(fp, "prediction.resolved", "consensus.outcome")
	o := &models.ConsensusOutcome{PredictionID: 3, ModelsAgreed: true, OutcomeType: models.OutcomeConsensusWin}

	require.NoError(t, p.PublishConsensus(context.Background(), domrepo.TF60, o))
	require.Len(t, fp.sent, 1)
	assert.Equal(t, "consensus.outcome", fp.sent[0].topic)
	assert.Equal(t, "60:3", fp.sent[0].key)
	ev := fp.sent[0].value.(ConsensusEvent)
	assert.Equal(t, models.OutcomeConsensusWin, ev.Outcome.OutcomeType)
	assert.Empty(t, ev.TraceID)

	require.NoError(t, p.Close())
	assert.True(t, fp.closed)
}

func TestKafkaPublisherPropagatesErrors(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker down")}
	p := newKafkaPublisher(fp, "a", "b")
	rec := resolvedRecord()
	assert.Error(t, p.PublishResolved(context.Background(), domrepo.TF5, &rec.Prediction))
}
