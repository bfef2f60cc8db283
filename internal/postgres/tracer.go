package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

// modulePrefix identifies application frames when attributing queries.
const modulePrefix = "github.com/linnemanlabs/pulse/"

var queryObserver atomic.Pointer[QueryObserver]

// QueryObserver receives one call per finished query (wired by main for Prometheus).
type QueryObserver interface {
	ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, method, route, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration) {
	f(ctx, method, route, outcome, dur)
}

// SetQueryObserver installs the process-wide query observer. nil removes it.
func SetQueryObserver(o QueryObserver) {
	if o == nil {
		queryObserver.Store(nil)
		return
	}
	queryObserver.Store(&o)
}

func currentObserver() QueryObserver {
	if p := queryObserver.Load(); p != nil {
		return *p
	}
	return nil
}

type queryStateKey struct{}

// queryState travels from TraceQueryStart to TraceQueryEnd.
type queryState struct {
	sql     string
	args    []any
	start   time.Time
	store   string // store method issuing the query, e.g. (*Store).Get
	service string // first application frame above the store
}

// queryTracer wraps another pgx.QueryTracer (otelpgx) with a log line,
// per-request stats and the query observer. Successful queries faster than
// slow are not logged; slow == 0 logs every query. Bind arguments are only
// logged when logArgs is set since signal text can carry personal data.
type queryTracer struct {
	inner   pgx.QueryTracer
	slow    time.Duration
	logArgs bool
}

func newQueryTracer(inner pgx.QueryTracer, slow time.Duration, logArgs bool) *queryTracer {
	return &queryTracer{inner: inner, slow: slow, logArgs: logArgs}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	st := &queryState{sql: data.SQL, args: data.Args, start: time.Now()}
	st.store, st.service = appCallers()

	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() && st.store != "" {
		span.SetAttributes(attribute.String("db.caller", st.store))
		if st.service != "" {
			span.SetAttributes(attribute.String("db.handler", st.service))
		}
	}

	return context.WithValue(ctx, queryStateKey{}, st)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	st, _ := ctx.Value(queryStateKey{}).(*queryState)
	if st == nil {
		st = &queryState{}
	}
	var dur time.Duration
	if !st.start.IsZero() {
		dur = time.Since(st.start)
	}

	if stats, ok := QueryStatsFromContext(ctx); ok {
		stats.add(dur, data.Err)
	}
	if obs := currentObserver(); obs != nil && dur > 0 {
		obs.ObserveQuery(ctx, methodLabel(ctx), routeLabel(ctx), outcomeLabel(data.Err), dur)
	}

	if data.Err == nil && t.slow > 0 && dur < t.slow {
		return
	}
	t.log(ctx, st, dur, data)
}

func (t *queryTracer) log(ctx context.Context, st *queryState, dur time.Duration, data pgx.TraceQueryEndData) {
	fields := []any{
		"db.statement", st.sql,
		"db.duration", dur.Seconds(),
	}
	if t.logArgs {
		fields = append(fields, "db.args", st.args)
	}
	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		op, _, _ := strings.Cut(tag, " ")
		fields = append(fields,
			"db.operation.name", strings.ToUpper(op),
			"db.rows", data.CommandTag.RowsAffected(),
		)
	}
	if st.store != "" {
		fields = append(fields, "db.caller", st.store)
	}
	if st.service != "" {
		fields = append(fields, "db.handler", st.service)
	}

	L := log.FromContext(ctx)
	if data.Err == nil {
		L.Info(ctx, "db query", fields...)
		return
	}

	var pgErr *pgconn.PgError
	if errors.As(data.Err, &pgErr) {
		fields = append(fields, "db.error_code", pgErr.Code, "db.error_constraint", pgErr.ConstraintName)
	}
	L.Error(ctx, data.Err, "db query failed", fields...)
}

func methodLabel(ctx context.Context) string {
	if m := httpMethodFromContext(ctx); m != "" {
		return m
	}
	return "UNKNOWN"
}

func routeLabel(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unknown"
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// appCallers returns the first two application frames on the stack outside
// this package: the store method running the query and whatever called it.
func appCallers() (store, service string) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var found []string
	for len(found) < 2 {
		fr, more := frames.Next()
		if isAppFrame(fr.Function) {
			found = append(found, shortenFuncName(fr.Function))
		}
		if !more {
			break
		}
	}

	switch len(found) {
	case 2:
		return found[0], found[1]
	case 1:
		return found[0], ""
	default:
		return "", ""
	}
}

func isAppFrame(fn string) bool {
	return strings.HasPrefix(fn, modulePrefix) &&
		!strings.HasPrefix(fn, modulePrefix+"internal/postgres.")
}

// shortenFuncName drops the import path and package name, keeping the
// receiver and method.
func shortenFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	if _, rest, ok := strings.Cut(fn, "."); ok && rest != "" {
		return rest
	}
	return fn
}
