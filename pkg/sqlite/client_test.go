package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{Path: "/data/p.db", BusyTimeout: 2 * time.Second, WAL: true, ForeignKeys: true})
	assert.True(t, strings.HasPrefix(dsn, "file:/data/p.db?"))
	assert.Contains(t, dsn, "busy_timeout%282000%29")
	assert.Contains(t, dsn, "journal_mode%28WAL%29")
	assert.Contains(t, dsn, "foreign_keys%281%29")
	assert.Contains(t, dsn, "_time_format=sqlite")

	assert.Equal(t, "file:x.db?_time_format=sqlite", buildDSN(ClientConfig{Path: "x.db"}))
}

func TestNewClientRequiresPath(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}

func TestClientInitSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	c, err := NewClient(WithPath(path), WithBusyTimeout(time.Second))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.InitSchema(ctx, []string{
		`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)`,
		`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)`,
	}))
	_, err = c.DB().ExecContext(ctx, `INSERT INTO kv (k, v) VALUES (?, ?)`, "a", "b")
	require.NoError(t, err)

	var v string
	require.NoError(t, c.DB().GetContext(ctx, &v, `SELECT v FROM kv WHERE k = ?`, "a"))
	assert.Equal(t, "b", v)
	assert.NoError(t, c.Health(ctx))
	assert.Equal(t, path, c.Path())
}
