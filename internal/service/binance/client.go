package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"github.com/MrMerge8/recursive/internal/domain/models"
	drepo "github.com/MrMerge8/recursive/internal/domain/repository"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// Client implements a MarketFeed backed by the Binance spot REST API.
type Client struct {
	api      *gobinance.Client
	symbol   string
	interval string
	limiter  *rate.Limiter
	l        *applogger.Logger
}

var _ drepo.MarketFeed = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithBaseURL points the client at another REST host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.api.BaseURL = u
		}
	}
}

// WithTimeout bounds every HTTP round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.api.HTTPClient = &http.Client{Timeout: d}
		}
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSec float64) Option {
	return func(c *Client) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.l = l
		}
	}
}

// New creates a public-data client; no API key is needed for market endpoints.
func New(symbol, interval string, opts ...Option) *Client {
	c := &Client{
		api:      gobinance.NewClient("", ""),
		symbol:   symbol,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		l:        applogger.Nop(),
	}
	c.api.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &dsvc.TransientError{Op: op, Err: err}
	}
	return nil
}

// Price returns the latest spot price.
func (c *Client) Price(ctx context.Context) (float64, error) {
	const op = "binance price"
	if err := c.wait(ctx, op); err != nil {
		return 0, err
	}
	res, err := c.api.NewListPricesService().Symbol(c.symbol).Do(ctx)
	if err != nil {
		c.l.Warn("binance price failed", applogger.String("symbol", c.symbol), applogger.Error(err))
		return 0, &dsvc.TransientError{Op: op, Err: err}
	}
	if len(res) == 0 {
		return 0, &dsvc.TransientError{Op: op, Err: fmt.Errorf("no price for %s", c.symbol)}
	}
	p, err := strconv.ParseFloat(res[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// Candles returns up to limit klines, oldest first.
func (c *Client) Candles(ctx context.Context, limit int) ([]models.Candle, error) {
	const op = "binance klines"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	start := time.Now()
	klines, err := c.api.NewKlinesService().
		Symbol(c.symbol).
		Interval(c.interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		c.l.Warn("binance klines failed", applogger.String("symbol", c.symbol), applogger.Error(err))
		return nil, &dsvc.TransientError{Op: op, Err: err}
	}
	out := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		candle, err := toCandle(k)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, candle)
	}
	c.l.Debug("binance klines ok",
		applogger.String("symbol", c.symbol),
		applogger.String("interval", c.interval),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// Stats24h returns rolling 24h ticker statistics.
func (c *Client) Stats24h(ctx context.Context) (models.Ticker24h, error) {
	const op = "binance 24h stats"
	if err := c.wait(ctx, op); err != nil {
		return models.Ticker24h{}, err
	}
	res, err := c.api.NewListPriceChangeStatsService().Symbol(c.symbol).Do(ctx)
	if err != nil {
		c.l.Warn("binance 24h stats failed", applogger.String("symbol", c.symbol), applogger.Error(err))
		return models.Ticker24h{}, &dsvc.TransientError{Op: op, Err: err}
	}
	if len(res) == 0 || res[0] == nil {
		return models.Ticker24h{}, &dsvc.TransientError{Op: op, Err: fmt.Errorf("no stats for %s", c.symbol)}
	}
	s := res[0]
	var p parser
	t := models.Ticker24h{
		PriceChangePct:   p.float(s.PriceChangePercent),
		High:             p.float(s.HighPrice),
		Low:              p.float(s.LowPrice),
		Volume:           p.float(s.Volume),
		QuoteVolume:      p.float(s.QuoteVolume),
		WeightedAvgPrice: p.float(s.WeightedAvgPrice),
	}
	if p.err != nil {
		return models.Ticker24h{}, fmt.Errorf("%s: %w", op, p.err)
	}
	return t, nil
}

func toCandle(k *gobinance.Kline) (models.Candle, error) {
	var p parser
	c := models.Candle{
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		Open:     p.float(k.Open),
		High:     p.float(k.High),
		Low:      p.float(k.Low),
		Close:    p.float(k.Close),
		Volume:   p.float(k.Volume),
	}
	return c, p.err
}

// parser keeps the first conversion error.
type parser struct{ err error }

func (p *parser) float(s string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = err
		return 0
	}
	return v
}
