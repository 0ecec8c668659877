// Package api serves the booking backend to the mobile and web apps over
// JSON/HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"studiotblack/internal/booking"
	"studiotblack/internal/model"
	"studiotblack/internal/service"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

// BookingService is the booking surface used by the handlers.
type BookingService interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	ListProfessionals(ctx context.Context) ([]model.Professional, error)
	ProfessionalsFor(ctx context.Context, serviceID string) ([]model.Professional, error)
	OccupiedSlots(ctx context.Context, professionalID, date string) ([]string, error)
	ListUserBookings(ctx context.Context, userID string) ([]model.Booking, error)
	UpcomingUserBookings(ctx context.Context, userID, today string) ([]model.Booking, error)
	ListBookingsBetween(ctx context.Context, from, to string) ([]model.Booking, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	CancelBooking(ctx context.Context, id, userID string) (*model.Booking, error)
	UpdateStatus(ctx context.Context, id string, status model.BookingStatus, by string) (*model.Booking, error)
	Dashboard(ctx context.Context, day time.Time, pending service.PendingCounter) (*service.Dashboard, error)
}

// Access decides who may start a flow and who manages the shop.
type Access interface {
	CheckCustomer(ctx context.Context, userID string) error
	IsManager(userID string) bool
}

type DeviceStore interface {
	RegisterDevice(ctx context.Context, d model.Device) error
	DeleteDevice(ctx context.Context, token string) error
}

type SettingsStore interface {
	GetUserSettings(ctx context.Context, userID string) (*model.UserSettings, error)
	UpsertUserSettings(ctx context.Context, userID string, remindersEnabled bool, hoursBefore int) error
}

// Deps are the collaborators of the HTTP server. Pending and Health are
// optional.
type Deps struct {
	Bookings BookingService
	Sessions *booking.SessionStore
	Access   Access
	Devices  DeviceStore
	Settings SettingsStore
	Pending  service.PendingCounter
	Health   http.Handler
	Logger   *zerolog.Logger
}

// Config holds the HTTP server settings.
type Config struct {
	JWTSecret string
	RateLimit float64
	RateBurst int
	// TrustedProxies lists addresses or CIDR ranges whose
	// X-Forwarded-For header is believed.
	TrustedProxies []string
	// FlowOptions drive the public slot listing so it matches what a
	// flow offers.
	FlowOptions booking.Options
	Location    *time.Location
	Now         func() time.Time
}

// HTTPServer exposes the catalog, the booking wizard and the admin tools.
type HTTPServer struct {
	deps    Deps
	cfg     Config
	limiter *RateLimiter
	proxies []netip.Prefix
	logger  *zerolog.Logger
}

func NewHTTPServer(deps Deps, cfg Config) *HTTPServer {
	if deps.Logger == nil {
		l := zerolog.Nop()
		deps.Logger = &l
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	l := deps.Logger.With().Str("component", "api").Logger()
	proxies, err := parseProxies(cfg.TrustedProxies)
	if err != nil {
		l.Error().Err(err).Msg("ignoring trusted proxies, forwarded headers will not be read")
		proxies = nil
	}
	return &HTTPServer{
		deps:    deps,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		proxies: proxies,
		logger:  &l,
	}
}

// Handler returns the routed API wrapped in its middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	router := httprouter.New()
	s.registerRoutes(router)

	if s.deps.Health != nil {
		router.Handler(http.MethodGet, "/healthz", s.deps.Health)
		router.Handler(http.MethodGet, "/readyz", s.deps.Health)
	}
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var h http.Handler = router
	h = s.rateLimit(h)
	h = s.requestLogger(h)
	h = s.recovery(h)
	return h
}

func (s *HTTPServer) registerRoutes(r *httprouter.Router) {
	s.handle(r, http.MethodGet, "/api/v1/services", s.handleServices)
	s.handle(r, http.MethodGet, "/api/v1/professionals", s.handleProfessionals)
	s.handle(r, http.MethodGet, "/api/v1/slots", s.handleSlots)

	s.handle(r, http.MethodPost, "/api/v1/flows", s.authenticate(s.handleCreateFlow))
	s.handle(r, http.MethodGet, "/api/v1/flows/:id", s.authenticate(s.handleGetFlow))
	s.handle(r, http.MethodDelete, "/api/v1/flows/:id", s.authenticate(s.handleDeleteFlow))
	s.handle(r, http.MethodPost, "/api/v1/flows/:id/:action", s.authenticate(s.handleFlowAction))

	s.handle(r, http.MethodGet, "/api/v1/bookings", s.authenticate(s.handleMyBookings))
	s.handle(r, http.MethodPost, "/api/v1/bookings/:id/cancel", s.authenticate(s.handleCancelBooking))

	s.handle(r, http.MethodPost, "/api/v1/devices", s.authenticate(s.handleRegisterDevice))
	s.handle(r, http.MethodDelete, "/api/v1/devices/:token", s.authenticate(s.handleDeleteDevice))
	s.handle(r, http.MethodGet, "/api/v1/settings", s.authenticate(s.handleGetSettings))
	s.handle(r, http.MethodPut, "/api/v1/settings", s.authenticate(s.handlePutSettings))

	s.handle(r, http.MethodGet, "/api/v1/admin/dashboard", s.authenticate(s.requireManager(s.handleDashboard)))
	s.handle(r, http.MethodGet, "/api/v1/admin/export", s.authenticate(s.requireManager(s.handleExport)))
	s.handle(r, http.MethodPatch, "/api/v1/admin/bookings/:id/status", s.authenticate(s.requireManager(s.handleUpdateStatus)))
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go s.limiter.Run(ctx)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func (s *HTTPServer) today() string {
	return s.cfg.Now().In(s.cfg.Location).Format(model.DateLayout)
}
