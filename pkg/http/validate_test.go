package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Price      *float64 `json:"current_price" validate:"required,gt=0"`
	Confidence *int     `json:"confidence" validate:"required,gte=0,lte=100"`
	Source     string   `json:"source" default:"local_llm"`
}

func bind(t *testing.T, body string, req interface{}) interface{} {
	t.Helper()
	e := echo.New()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return ReadAndValidateRequest(e.NewContext(r, httptest.NewRecorder()), req)
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	var req sampleRequest
	require.Nil(t, bind(t, `{"current_price": 64000.5, "confidence": 70}`, &req))
	assert.Equal(t, "local_llm", req.Source)
	assert.Equal(t, 70, *req.Confidence)
}

func TestReadAndValidateRequestUsesJSONNames(t *testing.T) {
	var req sampleRequest
	errs, ok := bind(t, `{"confidence": 140}`, &req).([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 2)

	assert.Equal(t, "current_price", errs[0].Field)
	assert.Equal(t, "ERR_REQUIRED", errs[0].Code)
	assert.Equal(t, "confidence", errs[1].Field)
	assert.Equal(t, "ERR_LTE", errs[1].Code)
	assert.Equal(t, "confidence must be at most 100", errs[1].Message)
	assert.Equal(t, map[string]interface{}{"max": "100"}, errs[1].Params)
}

func TestReadAndValidateRequestMalformedBody(t *testing.T) {
	var req sampleRequest
	errs, ok := bind(t, `{"current_price":`, &req).([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_MALFORMED", errs[0].Code)
}
