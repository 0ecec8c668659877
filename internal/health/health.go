// Package health exposes liveness and readiness over HTTP and the standard
// gRPC health protocol.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// Checker runs named readiness checks.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Checker{checks: make(map[string]Check), timeout: timeout}
}

// Add registers a check. A nil check is ignored.
func (c *Checker) Add(name string, check Check) {
	if check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes every check and returns the failures keyed by name.
func (c *Checker) Run(ctx context.Context) map[string]string {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		c.mu.RLock()
		check := c.checks[name]
		c.mu.RUnlock()

		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := check(cctx)
		cancel()
		if err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}

// Handler serves /healthz and /readyz.
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		failed := c.Run(r.Context())
		if len(failed) > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "not ready", "failed": failed})
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

// ServeHTTP runs the HTTP health endpoints on addr until ctx is done.
func ServeHTTP(ctx context.Context, addr string, h http.Handler, logger *zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("addr", addr).Msg("health server error")
	}
}
