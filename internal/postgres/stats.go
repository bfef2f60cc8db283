package postgres

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

type httpMethodKey struct{}

type queryStatsKey struct{}

// QueryStats accumulates the database work done on behalf of one request.
type QueryStats struct {
	mu      sync.Mutex
	queries int
	errors  int
	total   time.Duration
	slowest time.Duration
}

// QueryStatsSnapshot is a point-in-time copy of QueryStats.
type QueryStatsSnapshot struct {
	Queries int
	Errors  int
	Total   time.Duration
	Slowest time.Duration
}

func (s *QueryStats) add(dur time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	s.total += dur
	if dur > s.slowest {
		s.slowest = dur
	}
	if err != nil {
		s.errors++
	}
}

// Snapshot returns the current totals.
func (s *QueryStats) Snapshot() QueryStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return QueryStatsSnapshot{Queries: s.queries, Errors: s.errors, Total: s.total, Slowest: s.slowest}
}

// WithQueryStats attaches a fresh QueryStats to ctx.
func WithQueryStats(ctx context.Context) (context.Context, *QueryStats) {
	s := &QueryStats{}
	return context.WithValue(ctx, queryStatsKey{}, s), s
}

// QueryStatsFromContext returns the QueryStats attached to ctx, if any.
func QueryStatsFromContext(ctx context.Context) (*QueryStats, bool) {
	s, ok := ctx.Value(queryStatsKey{}).(*QueryStats)
	return s, ok
}

// WithHTTPMethod stores the HTTP method for query metric labels.
func WithHTTPMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return context.WithValue(ctx, httpMethodKey{}, method)
}

func httpMethodFromContext(ctx context.Context) string {
	m, _ := ctx.Value(httpMethodKey{}).(string)
	return m
}

// RequestStats is HTTP middleware that labels queries with the request
// method and collects per-request query stats. Requests that touched the
// database get one summary log line and matching span attributes.
func RequestStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, stats := WithQueryStats(WithHTTPMethod(r.Context(), r.Method))
		next.ServeHTTP(w, r.WithContext(ctx))

		snap := stats.Snapshot()
		if snap.Queries == 0 {
			return
		}

		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(
				attribute.Int("db.request.queries", snap.Queries),
				attribute.Float64("db.request.duration", snap.Total.Seconds()),
			)
		}
		log.FromContext(ctx).Info(ctx, "request db stats",
			"db.queries", snap.Queries,
			"db.errors", snap.Errors,
			"db.duration", snap.Total.Seconds(),
			"db.slowest", snap.Slowest.Seconds(),
		)
	})
}
