package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/geojson2mvt-go/internal/logger"
)

// Postgres runs the request body as a query against the database named by
// a postgres:// URL. The query must return a single GeoJSON document, for
// example built with ST_AsGeoJSON and json_build_object.
type Postgres struct {
	mu       sync.Mutex
	pools    map[string]*pgxpool.Pool
	maxConns int32
}

// NewPostgres creates a PostGIS transport keeping one pool per database URL.
func NewPostgres(maxConns int32) *Postgres {
	return &Postgres{
		pools:    make(map[string]*pgxpool.Pool),
		maxConns: maxConns,
	}
}

// Fetch implements Transport.
func (p *Postgres) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req.Body == "" {
		return nil, errors.New("postgres request needs a query body")
	}
	start := time.Now()

	pool, err := p.pool(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	var doc []byte
	if err := pool.QueryRow(ctx, req.Body).Scan(&doc); err != nil {
		return nil, fmt.Errorf("failed to query geojson: %w", err)
	}

	logger.Get().Debug("Queried document",
		zap.Int("bytes", len(doc)),
		zap.Duration("duration", time.Since(start)))

	return &Response{
		Data: doc,
		Timing: []ResourceTiming{{
			Name:         redact(req.URL),
			StartTime:    start,
			Duration:     time.Since(start),
			TransferSize: len(doc),
		}},
	}, nil
}

func (p *Postgres) pool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pool, ok := p.pools[connString]; ok {
		return pool, nil
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if p.maxConns > 0 {
		cfg.MaxConns = p.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	p.pools[connString] = pool
	return pool, nil
}

// Close closes every pool.
func (p *Postgres) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, pool := range p.pools {
		pool.Close()
		delete(p.pools, k)
	}
}

// redact drops the password from a connection URL.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
