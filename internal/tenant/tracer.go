package tenant

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/ats-gateway/pkg/logger"
)

// QueryTracer logs SQL timing and affected rows for one tenant's pool.
// It only observes; queries run unchanged.
type QueryTracer struct {
	Tenant string
	now    func() time.Time
}

type traceKey struct{}

type traceStart struct {
	sql   string
	start time.Time
}

func (t *QueryTracer) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceStart{sql: data.SQL, start: t.clock()})
}

func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	st, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}
	ev := logger.L().Info()
	if data.Err != nil {
		ev = logger.L().Warn().Err(data.Err)
	}
	ev.Str("tenant", t.Tenant).
		Str("sql", st.sql).
		Dur("took", t.clock().Sub(st.start)).
		Int64("rows", data.CommandTag.RowsAffected()).
		Msg("query")
}
