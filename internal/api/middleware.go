package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"studiotblack/internal/metrics"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("stack", string(debug.Stack())).
					Msg("panic recovered")
				writeMessage(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestLogger attaches a request-scoped logger and counts the response
// by matched route.
func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		l := s.logger.With().Str("request_id", reqID).Logger()
		info := &routeInfo{path: "unmatched"}
		ctx := context.WithValue(l.WithContext(r.Context()), routeKey{}, info)
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := info.path
		metrics.IncHTTP(route, strconv.Itoa(rec.status))
		l.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r, s.proxies)) {
			w.Header().Set("Retry-After", "1")
			writeMessage(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type routeKey struct{}

type routeInfo struct {
	path string
}

// handle registers h and records its pattern for the request metrics, so
// labels stay bounded.
func (s *HTTPServer) handle(router *httprouter.Router, method, path string, h httprouter.Handle) {
	router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if info, ok := r.Context().Value(routeKey{}).(*routeInfo); ok {
			info.path = method + " " + path
		}
		h(w, r, ps)
	})
}
