package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
	pkgsqlite "github.com/MrMerge8/recursive/pkg/sqlite"
)

// StoreRegistry owns one isolated store per timeframe.
type StoreRegistry struct {
	stores map[domrepo.Timeframe]domrepo.Store
	order  []domrepo.Timeframe
}

// OpenStores opens <dataDir>/<tf.DBFile()> for each timeframe.
func OpenStores(ctx context.Context, dataDir string, tfs []domrepo.Timeframe, busyTimeout, queryTimeout time.Duration, l *applogger.Logger) (*StoreRegistry, error) {
	r := &StoreRegistry{stores: make(map[domrepo.Timeframe]domrepo.Store, len(tfs))}
	for _, tf := range tfs {
		if _, ok := r.stores[tf]; ok {
			continue
		}
		path := filepath.Join(dataDir, tf.DBFile())
		c, err := pkgsqlite.NewClient(pkgsqlite.WithPath(path), pkgsqlite.WithBusyTimeout(busyTimeout))
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("open store %s: %w", tf, err)
		}
		s, err := NewSQLiteStore(ctx, c, queryTimeout)
		if err != nil {
			_ = c.Close()
			_ = r.Close()
			return nil, fmt.Errorf("init store %s: %w", tf, err)
		}
		s.SetLogger(l.With(applogger.String("timeframe", string(tf))))
		r.stores[tf] = s
		r.order = append(r.order, tf)
	}
	return r, nil
}

// NewStoreRegistry builds a registry from already-open stores.
func NewStoreRegistry(stores map[domrepo.Timeframe]domrepo.Store) *StoreRegistry {
	r := &StoreRegistry{stores: stores}
	for _, tf := range domrepo.AllTimeframes {
		if _, ok := stores[tf]; ok {
			r.order = append(r.order, tf)
		}
	}
	return r
}

// Get returns the store for tf, falling back to the default timeframe and
// then to the first configured store.
func (r *StoreRegistry) Get(tf domrepo.Timeframe) (domrepo.Store, domrepo.Timeframe, bool) {
	if s, ok := r.stores[tf]; ok {
		return s, tf, true
	}
	if s, ok := r.stores[domrepo.DefaultTimeframe()]; ok {
		return s, domrepo.DefaultTimeframe(), true
	}
	if len(r.order) > 0 {
		return r.stores[r.order[0]], r.order[0], true
	}
	return nil, "", false
}

func (r *StoreRegistry) Timeframes() []domrepo.Timeframe {
	out := make([]domrepo.Timeframe, len(r.order))
	copy(out, r.order)
	return out
}

func (r *StoreRegistry) Health(ctx context.Context) error {
	for _, tf := range r.order {
		if err := r.stores[tf].Health(ctx); err != nil {
			return fmt.Errorf("store %s: %w", tf, err)
		}
	}
	return nil
}

func (r *StoreRegistry) Close() error {
	var first error
	for _, tf := range r.order {
		if err := r.stores[tf].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
