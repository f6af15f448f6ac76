package tenant

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Binding is the resolved tenant for one request.
type Binding struct {
	ID string
	// DB is nil when the tenant has no database configured.
	DB *pgxpool.Pool
}

// Registry holds one connection pool per tenant. Pools are opened lazily by
// pgx, so construction does not contact the databases.
type Registry struct {
	pools map[string]*pgxpool.Pool
}

func NewRegistry(ctx context.Context, dsns map[string]string, trace bool) (*Registry, error) {
	r := &Registry{pools: make(map[string]*pgxpool.Pool, len(dsns))}
	for id, dsn := range dsns {
		cfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("tenant %s: parsing DSN: %w", id, err)
		}
		if trace {
			cfg.ConnConfig.Tracer = &QueryTracer{Tenant: id}
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("tenant %s: creating pool: %w", id, err)
		}
		r.pools[id] = pool
	}
	return r, nil
}

// Bind returns the binding for id. A nil registry yields bindings without a database.
func (r *Registry) Bind(id string) Binding {
	if r == nil {
		return Binding{ID: id}
	}
	return Binding{ID: id, DB: r.pools[id]}
}

// Ping checks every configured tenant database.
func (r *Registry) Ping(ctx context.Context) map[string]string {
	out := map[string]string{}
	if r == nil {
		return out
	}
	for id, pool := range r.pools {
		if err := pool.Ping(ctx); err != nil {
			out[id] = "unavailable"
			continue
		}
		out[id] = "ok"
	}
	return out
}

func (r *Registry) Close() {
	if r == nil {
		return
	}
	for _, pool := range r.pools {
		pool.Close()
	}
}
