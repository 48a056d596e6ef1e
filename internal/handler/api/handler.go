package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	"github.com/MrMerge8/recursive/internal/service/metrics"
	"github.com/MrMerge8/recursive/internal/service/ratelimit"
	"github.com/MrMerge8/recursive/internal/usecase"
	xhttp "github.com/MrMerge8/recursive/pkg/http"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// Handler serves the dashboard, the stats API and the authenticated
// ingestion and resolution endpoints.
type Handler struct {
	ingest *usecase.IngestService
	dash   *usecase.DashboardService
	rl     *ratelimit.Limiter
	apiKey string
	l      *applogger.Logger
}

var _ xhttp.Handler = (*Handler)(nil)

// NewHandler wires the endpoints. An empty apiKey disables authentication;
// a nil limiter disables rate limiting.
func NewHandler(ingest *usecase.IngestService, dash *usecase.DashboardService, rl *ratelimit.Limiter, apiKey string, l *applogger.Logger) *Handler {
	metrics.Register()
	return &Handler{ingest: ingest, dash: dash, rl: rl, apiKey: apiKey, l: l.With(applogger.String("component", "api"))}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Index)
	e.GET("/index.html", h.Index)
	e.GET("/favicon.ico", h.Favicon)
	e.GET("/healthz", h.Healthz)

	g := e.Group("/api")
	g.GET("/stats", h.Stats)
	g.GET("/dashboard", h.DashboardJSON)
	g.POST("/prediction", h.CreatePrediction)
	g.POST("/resolve", h.Resolve)
}

// observe records endpoint latency; call via defer with the start time.
func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// fail maps usecase errors onto API responses.
func (h *Handler) fail(c echo.Context, endpoint string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, usecase.ErrInvalidInput):
		appErr = xhttp.BadRequestError(err.Error())
	case errors.Is(err, domrepo.ErrNotFound):
		appErr = xhttp.NotFoundError("prediction not found")
	case errors.Is(err, domrepo.ErrAlreadyResolved):
		appErr = xhttp.ConflictError("prediction already resolved")
	default:
		h.l.Error("request failed", applogger.String("endpoint", endpoint), applogger.Error(err))
		metrics.APIErrors.WithLabelValues(endpoint, "500").Inc()
		return xhttp.InternalServerErrorResponse(c)
	}
	metrics.APIErrors.WithLabelValues(endpoint, strconv.Itoa(appErr.Status)).Inc()
	return xhttp.AppErrorResponse(c, appErr)
}
