package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframeParamAcceptsStringOrNumber(t *testing.T) {
	tests := []struct {
		body string
		want TimeframeParam
	}{
		{`{"timeframe":"15"}`, "15"},
		{`{"timeframe":60}`, "60"},
		{`{"timeframe":null}`, ""},
		{`{}`, ""},
	}
	for _, tt := range tests {
		var req ResolveRequest
		require.NoError(t, json.Unmarshal([]byte(tt.body), &req), tt.body)
		assert.Equal(t, tt.want, req.Timeframe, tt.body)
	}
}

func TestStringListScan(t *testing.T) {
	var l StringList
	require.NoError(t, l.Scan(`["a","b"]`))
	assert.Equal(t, StringList{"a", "b"}, l)

	require.NoError(t, l.Scan(nil))
	assert.Empty(t, l)

	assert.Error(t, l.Scan(42))

	v, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestCandleChangePct(t *testing.T) {
	assert.InDelta(t, 1.0, Candle{Open: 100, Close: 101}.ChangePct(), 1e-9)
	assert.Zero(t, Candle{}.ChangePct())
}
