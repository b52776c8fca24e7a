package dbproxy

import (
	"context"
	"database/sql"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"

	"github.com/kcenon/common-game-server-sub000/pkg/cgserrors"
	"github.com/kcenon/common-game-server-sub000/pkg/logger"
	"github.com/kcenon/common-game-server-sub000/pkg/metrics"
)

// EndpointConfig describes one database connection (primary or replica).
type EndpointConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Config is the full DBProxy configuration: one primary, zero or more
// read replicas, and the query cache in front of them.
type Config struct {
	Primary  EndpointConfig
	Replicas []EndpointConfig
	Cache    CacheConfig
}

// writeTablePattern extracts the table name from the write statements
// the proxy recognizes as cache-invalidating: INSERT INTO, UPDATE,
// DELETE FROM, ALTER TABLE, DROP TABLE, and TRUNCATE [TABLE].
var writeTablePattern = regexp.MustCompile(`(?i)(?:INSERT\s+INTO|UPDATE|DELETE\s+FROM|ALTER\s+TABLE|DROP\s+TABLE|TRUNCATE\s+TABLE|TRUNCATE)\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)

// Proxy routes SELECT queries through an LRU+TTL cache and replicas, and
// write commands to the primary with automatic cache invalidation by
// table name.
type Proxy struct {
	config Config
	cache  *Cache
	log    *logger.Logger
	met    *metrics.Metrics

	mu       sync.RWMutex
	running  bool
	primary  *sql.DB
	replicas []*sql.DB

	replicaIdx   uint64
	totalQueries uint64
}

// NewProxy constructs a Proxy against config. met and log may be nil in
// tests; Start still works, just without observability.
func NewProxy(config Config, met *metrics.Metrics, log *logger.Logger) *Proxy {
	return &Proxy{
		config: config,
		cache:  NewCache(config.Cache),
		met:    met,
		log:    log,
	}
}

// Start opens connection pools to the primary and every replica.
func (p *Proxy) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	primary, err := openPool(p.config.Primary)
	if err != nil {
		return cgserrors.Wrap(cgserrors.PrimaryUnavailable, "open primary connection pool", err)
	}

	replicas := make([]*sql.DB, 0, len(p.config.Replicas))
	for _, r := range p.config.Replicas {
		db, err := openPool(r)
		if err != nil {
			_ = primary.Close()
			for _, opened := range replicas {
				_ = opened.Close()
			}
			return cgserrors.Wrap(cgserrors.ReplicaUnavailable, "open replica connection pool", err)
		}
		replicas = append(replicas, db)
	}

	p.primary = primary
	p.replicas = replicas
	p.running = true
	return nil
}

func openPool(cfg EndpointConfig) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// Stop closes every connection pool and clears the cache.
func (p *Proxy) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	if p.primary != nil {
		_ = p.primary.Close()
	}
	for _, r := range p.replicas {
		_ = r.Close()
	}
	p.primary = nil
	p.replicas = nil
	p.running = false
	p.cache.Clear()
}

// IsRunning reports whether Start has succeeded and Stop hasn't run since.
func (p *Proxy) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Query executes a read query, serving from cache when possible. On a
// miss it's routed to a replica (round-robin) with fallback to the
// primary on replica error, then cached for ttl (0 uses the cache's
// default TTL).
func (p *Proxy) Query(ctx context.Context, sqlText string, ttl time.Duration) (CachedResult, error) {
	if cached, ok := p.cache.Get(sqlText); ok {
		p.recordCacheHit()
		return cached, nil
	}
	p.recordCacheMiss()

	p.mu.RLock()
	running := p.running
	primary := p.primary
	replicas := p.replicas
	p.mu.RUnlock()

	if !running {
		return CachedResult{}, cgserrors.New(cgserrors.DBProxyNotStarted, "dbproxy is not started")
	}

	start := time.Now()
	db, route := p.pickReader(replicas, primary)
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil && route == "replica" {
		// Replica errors fall through to primary rather than failing the caller.
		route = "primary"
		rows, err = primary.QueryContext(ctx, sqlText)
	}
	if err != nil {
		p.recordQuery(route, "error", time.Since(start))
		return CachedResult{}, cgserrors.Wrap(cgserrors.QueryRoutingFailed, "execute query", err)
	}

	result, err := scanRows(rows)
	if err != nil {
		p.recordQuery(route, "error", time.Since(start))
		return CachedResult{}, cgserrors.Wrap(cgserrors.QueryRoutingFailed, "scan query result", err)
	}

	p.recordQuery(route, "ok", time.Since(start))
	p.cache.Put(sqlText, result, ttl)
	return result, nil
}

// Execute runs a write command against the primary and invalidates any
// cache entries that mention the affected table.
func (p *Proxy) Execute(ctx context.Context, sqlText string) (int64, error) {
	p.mu.RLock()
	running := p.running
	primary := p.primary
	p.mu.RUnlock()

	if !running {
		return 0, cgserrors.New(cgserrors.DBProxyNotStarted, "dbproxy is not started")
	}

	start := time.Now()
	res, err := primary.ExecContext(ctx, sqlText)
	if err != nil {
		p.recordQuery("primary", "error", time.Since(start))
		return 0, cgserrors.Wrap(cgserrors.QueryRoutingFailed, "execute command", err)
	}
	p.recordQuery("primary", "ok", time.Since(start))

	if match := writeTablePattern.FindStringSubmatch(sqlText); match != nil {
		removed := p.cache.InvalidateByTable(match[1])
		if removed > 0 && p.met != nil {
			p.met.CacheInvalidations.Add(float64(removed))
		}
	}

	rowsAffected, _ := res.RowsAffected()
	return rowsAffected, nil
}

// InvalidateCache manually drops every cache entry mentioning tableName.
func (p *Proxy) InvalidateCache(tableName string) int {
	return p.cache.InvalidateByTable(tableName)
}

// ClearCache drops the entire cache.
func (p *Proxy) ClearCache() { p.cache.Clear() }

// CacheSize returns the current cache entry count.
func (p *Proxy) CacheSize() int { return p.cache.Size() }

// CacheHitRate returns the cache's running hit rate.
func (p *Proxy) CacheHitRate() float64 { return p.cache.HitRate() }

func (p *Proxy) pickReader(replicas []*sql.DB, primary *sql.DB) (*sql.DB, string) {
	if len(replicas) == 0 {
		return primary, "primary"
	}
	idx := atomic.AddUint64(&p.replicaIdx, 1)
	return replicas[idx%uint64(len(replicas))], "replica"
}

func (p *Proxy) recordCacheHit() {
	atomic.AddUint64(&p.totalQueries, 1)
	if p.met != nil {
		p.met.RecordCacheHit()
	}
}

func (p *Proxy) recordCacheMiss() {
	if p.met != nil {
		p.met.RecordCacheMiss()
	}
}

func (p *Proxy) recordQuery(route, status string, d time.Duration) {
	atomic.AddUint64(&p.totalQueries, 1)
	if p.met != nil {
		p.met.RecordQuery(route, status, d)
	}
	if p.log != nil {
		p.log.WithFields(map[string]any{"route": route, "status": status, "duration_ms": d.Milliseconds()}).Debug("dbproxy query")
	}
}

func scanRows(rows *sql.Rows) (CachedResult, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return CachedResult{}, err
	}

	result := CachedResult{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return CachedResult{}, err
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return CachedResult{}, err
	}
	return result, nil
}
