package api

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	xhttp "github.com/MrMerge8/recursive/pkg/http"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

var dashboardTmpl = template.Must(template.New("dashboard.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/dashboard.html"))

type tab struct {
	Timeframe string
	Label     string
	Active    bool
}

type dashboardView struct {
	*models.Dashboard
	Tabs        []tab
	GeneratedAt time.Time
}

// Index renders the HTML dashboard for ?tf=5|15|60.
func (h *Handler) Index(c echo.Context) error {
	const endpoint = "dashboard"
	defer observe(endpoint, time.Now())

	d, err := h.dash.Dashboard(c.Request().Context(), c.QueryParam("tf"))
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	view := dashboardView{Dashboard: d, GeneratedAt: time.Now().UTC()}
	for _, tf := range domrepo.AllTimeframes {
		view.Tabs = append(view.Tabs, tab{Timeframe: string(tf), Label: tf.Label(), Active: string(tf) == d.Timeframe})
	}

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, view); err != nil {
		return h.fail(c, endpoint, err)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// DashboardJSON returns the same read model as the HTML page.
func (h *Handler) DashboardJSON(c echo.Context) error {
	const endpoint = "dashboard_json"
	defer observe(endpoint, time.Now())

	req := &models.StatsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	d, err := h.dash.Dashboard(c.Request().Context(), req.TF)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, d)
}

// Stats returns the primary track record for ?tf.
func (h *Handler) Stats(c echo.Context) error {
	const endpoint = "stats"
	defer observe(endpoint, time.Now())

	req := &models.StatsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.dash.Stats(c.Request().Context(), req.TF)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, st)
}

func (h *Handler) Favicon(c echo.Context) error {
	return xhttp.NoContentResponse(c)
}

func (h *Handler) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()
	if err := h.dash.Health(ctx); err != nil {
		h.l.Warn("health check failed", applogger.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
