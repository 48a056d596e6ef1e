package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{Host: "ch", Port: 9000, Database: "recursive", User: "default", Password: "pw"}
	assert.Equal(t, "clickhouse://default:pw@ch:9000/default", buildDSN(cfg))

	cfg.DialTimeout = 5 * time.Second
	cfg.ReadTimeout = 10 * time.Second
	assert.Equal(t, "clickhouse://default:pw@ch:9000/default?dial_timeout=5s&read_timeout=10s", buildDSN(cfg))

	cfg = ClientConfig{Host: "ch", Port: 9440, User: "svc", Password: "p@ss/word"}
	assert.Equal(t, "clickhouse://svc:p%40ss%2Fword@ch:9440/default", buildDSN(cfg))

	cfg = ClientConfig{Host: "ch", Port: 9000}
	assert.Equal(t, "clickhouse://ch:9000/default", buildDSN(cfg))
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(WithPort(9000))
	assert.Error(t, err)
}
