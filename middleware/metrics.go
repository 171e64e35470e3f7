package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouteRecorder receives one observation per served request
type RouteRecorder interface {
	RecordRoute(route, status string)
}

// RouteMetrics records each request under its chi route pattern, so
// /api/v1/tenants/{tenantId}/rules/{ruleId} is one series for every rule.
func RouteMetrics(rec RouteRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = r.Method + " " + pattern
				}
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			rec.RecordRoute(route, strconv.Itoa(status))
		})
	}
}
