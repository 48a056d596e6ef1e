package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	pkgkafka "github.com/MrMerge8/recursive/pkg/kafka"
)

func TestKafkaIngestHandler(t *testing.T) {
	svc, reg, _ := newTestIngest(t)
	m, l := nopDeps()
	h := NewKafkaIngestHandler("prediction.ingest", svc, m, l)
	assert.Equal(t, "prediction.ingest", h.Topic())
	ctx := pkgkafka.WithTraceID(context.Background(), "trace-1")

	// timeframe may arrive as a number
	err := h.Handle(ctx, []byte(`{"current_price": 60000, "direction": "UP", "target": 60100, "confidence": 70, "timeframe": 15}`))
	require.NoError(t, err)

	st, _, _ := reg.Get(domrepo.TF15)
	stats, err := st.PredictionStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestKafkaIngestHandlerPermanentFailures(t *testing.T) {
	svc, _, _ := newTestIngest(t)
	m, l := nopDeps()
	h := NewKafkaIngestHandler("prediction.ingest", svc, m, l)

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"current_price":`},
		{"missing target", `{"current_price": 60000, "direction": "UP", "confidence": 70}`},
		{"confidence out of range", `{"current_price": 60000, "direction": "UP", "target": 1, "confidence": 170}`},
		{"bad direction", `{"current_price": 60000, "direction": "FLAT", "target": 1, "confidence": 70}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(context.Background(), []byte(tt.payload))
			require.Error(t, err)
			assert.True(t, pkgkafka.IsPermanent(err))
		})
	}
}
