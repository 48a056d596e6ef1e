package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrMerge8/recursive/internal/domain/models"
)

func TestExportJSONAscending(t *testing.T) {
	s := newTestStore(t)
	seedResolved(t, s, 1, 70, true, 0.2)
	seedResolved(t, s, 0, 40, false, 0.9)
	openPrediction(t, s, models.DirectionUp, 55)

	var buf bytes.Buffer
	n, err := ExportPredictions(context.Background(), s, FormatJSON, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var out []models.Prediction
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 3)
	assert.Equal(t, int64(2), out[0].ID, "oldest timestamp first")
	assert.True(t, out[0].Timestamp.Before(out[1].Timestamp) || out[0].Timestamp.Equal(out[1].Timestamp))
}

func TestExportCSV(t *testing.T) {
	s := newTestStore(t)
	seedResolved(t, s, 0, 70, true, 0.2)
	openPrediction(t, s, models.DirectionDown, 55)

	var buf bytes.Buffer
	n, err := ExportPredictions(context.Background(), s, FormatCSV, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportColumns, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "UP", rows[1][3])
	assert.Equal(t, "1", rows[1][10], "direction_correct")
	assert.Equal(t, "", rows[2][7], "open records have no resolved_at")
	assert.Equal(t, models.SourcePrimary, rows[2][16])
}

func TestExportEmptyAndUnknownFormat(t *testing.T) {
	s := newTestStore(t)
	var buf bytes.Buffer

	n, err := ExportPredictions(context.Background(), s, FormatCSV, &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, buf.String())

	_, err = ExportPredictions(context.Background(), s, "xml", &buf)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
