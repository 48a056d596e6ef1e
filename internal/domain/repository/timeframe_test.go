package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimeframe(t *testing.T) {
	assert.Equal(t, TF5, NormalizeTimeframe(""))
	assert.Equal(t, TF15, NormalizeTimeframe("15"))
	assert.Equal(t, TF60, NormalizeTimeframe("60"))
	assert.Equal(t, TF5, NormalizeTimeframe("7"))
	assert.Equal(t, TF5, NormalizeTimeframe("1h"))
}

func TestTimeframeMappings(t *testing.T) {
	tests := []struct {
		tf       Timeframe
		interval time.Duration
		file     string
		name     string
		label    string
	}{
		{TF5, 5 * time.Minute, "predictions_5min.db", "5M", "5-min cycles"},
		{TF15, 15 * time.Minute, "predictions_15min.db", "15M", "15-min cycles"},
		{TF60, time.Hour, "predictions_1h.db", "1H", "1-hour cycles"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.interval, tt.tf.Interval())
		assert.Equal(t, tt.file, tt.tf.DBFile())
		assert.Equal(t, tt.name, tt.tf.Name())
		assert.Equal(t, tt.label, tt.tf.Label())
	}
}
