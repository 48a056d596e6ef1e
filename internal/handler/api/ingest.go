package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/MrMerge8/recursive/internal/domain/models"
	"github.com/MrMerge8/recursive/internal/service/metrics"
	xhttp "github.com/MrMerge8/recursive/pkg/http"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

const bearerPrefix = "Bearer "

// authorize checks the bearer token. With requireScheme a request without a
// Bearer header is 401; otherwise any mismatch is 403.
func (h *Handler) authorize(c echo.Context, endpoint string, requireScheme bool) *xhttp.AppError {
	if h.apiKey == "" {
		return nil
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if requireScheme && !strings.HasPrefix(header, bearerPrefix) {
		h.l.Warn("missing bearer token", applogger.String("endpoint", endpoint), applogger.String("remote", c.RealIP()))
		return xhttp.UnauthorizedError("missing Authorization header")
	}
	provided := strings.TrimPrefix(header, bearerPrefix)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.apiKey)) != 1 {
		h.l.Warn("invalid api key", applogger.String("endpoint", endpoint), applogger.String("remote", c.RealIP()))
		return xhttp.ForbiddenError("invalid API key")
	}
	return nil
}

func (h *Handler) limited(c echo.Context, endpoint string) bool {
	if h.rl == nil || h.rl.Allow(endpoint+":"+c.RealIP()) {
		return false
	}
	h.l.Warn("rate limited", applogger.String("endpoint", endpoint), applogger.String("remote", c.RealIP()))
	return true
}

// CreatePrediction stores a forecast produced outside the orchestrator.
func (h *Handler) CreatePrediction(c echo.Context) error {
	const endpoint = "prediction"
	defer observe(endpoint, time.Now())

	if appErr := h.authorize(c, endpoint, true); appErr != nil {
		return h.fail(c, endpoint, appErr)
	}
	if h.limited(c, endpoint) {
		return h.fail(c, endpoint, xhttp.TooManyRequestsError("rate limited"))
	}

	req := &models.IngestPredictionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues(endpoint, "400").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.ingest.Ingest(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.DataResponse(c, http.StatusCreated, res)
}

// Resolve scores a stored prediction against a caller supplied price.
func (h *Handler) Resolve(c echo.Context) error {
	const endpoint = "resolve"
	defer observe(endpoint, time.Now())

	if appErr := h.authorize(c, endpoint, false); appErr != nil {
		return h.fail(c, endpoint, appErr)
	}
	if h.limited(c, endpoint) {
		return h.fail(c, endpoint, xhttp.TooManyRequestsError("rate limited"))
	}

	req := &models.ResolveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues(endpoint, "400").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.ingest.Resolve(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, res)
}
