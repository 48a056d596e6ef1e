package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	"github.com/MrMerge8/recursive/internal/repository"
	"github.com/MrMerge8/recursive/internal/usecase"
	"github.com/MrMerge8/recursive/pkg/config"
	xhttp "github.com/MrMerge8/recursive/pkg/http"
	pkgkafka "github.com/MrMerge8/recursive/pkg/kafka"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	l         *applogger.Logger
	stores    *repository.StoreRegistry
	orchs     map[domrepo.Timeframe]*usecase.Orchestrator
	dashboard *usecase.DashboardService
	handler   xhttp.Handler
	consumer  *pkgkafka.Consumer
	kh        pkgkafka.MessageHandler
	closers   []namedCloser

	httpServer *xhttp.Server
	closeOnce  sync.Once
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Components groups everything DI builds for the App.
type Components struct {
	Logger        *applogger.Logger
	Stores        *repository.StoreRegistry
	Orchestrators []*usecase.Orchestrator
	Dashboard     *usecase.DashboardService
	Handler       xhttp.Handler
	Consumer      *pkgkafka.Consumer
	KafkaHandler  pkgkafka.MessageHandler
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, c Components) *App {
	a := &App{
		cfg:       cfg,
		l:         c.Logger,
		stores:    c.Stores,
		orchs:     make(map[domrepo.Timeframe]*usecase.Orchestrator, len(c.Orchestrators)),
		dashboard: c.Dashboard,
		handler:   c.Handler,
		consumer:  c.Consumer,
		kh:        c.KafkaHandler,
	}
	for _, o := range c.Orchestrators {
		a.orchs[o.Timeframe()] = o
	}
	return a
}

// AddCloser registers a resource released on Close, in reverse order.
func (a *App) AddCloser(name string, c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

func (a *App) Logger() *applogger.Logger { return a.l }
func (a *App) Stores() *repository.StoreRegistry { return a.stores }
func (a *App) Dashboard() *usecase.DashboardService { return a.dashboard }
func (a *App) Timeframes() []domrepo.Timeframe { return a.stores.Timeframes() }

// Orchestrator returns the loop for tf, falling back to the default timeframe.
func (a *App) Orchestrator(tf domrepo.Timeframe) (*usecase.Orchestrator, error) {
	if _, resolved, ok := a.stores.Get(tf); ok {
		if o, found := a.orchs[resolved]; found {
			return o, nil
		}
	}
	return nil, fmt.Errorf("no orchestrator for timeframe %q", tf)
}

// Run starts the orchestrators, the kafka consumer and the HTTP server and
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, tf := range a.Timeframes() {
		o, ok := a.orchs[tf]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(o *usecase.Orchestrator) {
			defer wg.Done()
			if err := o.Run(ctx); err != nil {
				a.l.Error("orchestrator stopped", applogger.String("timeframe", string(o.Timeframe())), applogger.Error(err))
			}
		}(o)
		a.l.Info("orchestrator started", applogger.String("timeframe", string(tf)), applogger.String("label", tf.Label()))
	}

	err := a.Serve(ctx)
	// orchestrators watch the same ctx; wait so stores are not closed under them
	wg.Wait()
	return err
}

// Serve runs only the read side (HTTP server and kafka ingestion) until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithLogger(a.l),
	)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops the network surfaces; stores stay open until Close.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil && a.kh != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases infrastructure clients and the stores. Safe to call twice.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			nc := a.closers[i]
			if err := nc.c.Close(); err != nil {
				a.l.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
				errs = append(errs, err)
			}
		}
		if a.stores != nil {
			if err := a.stores.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		a.l.Info("shutdown complete", applogger.Duration("grace", a.cfg.Server.ShutdownTimeout))
	})
	return errors.Join(errs...)
}
