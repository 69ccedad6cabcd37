// Package router wires handlers and middleware into the public HTTP API.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"courier-dispatch/internal/http/handlers"
	obs "courier-dispatch/internal/http/middleware"
	"courier-dispatch/internal/logx"
)

const requestTimeout = 5 * time.Second

// Deps are the pieces the router mounts.
type Deps struct {
	Logger      logx.Logger
	Base        *handlers.Handlers
	Orders      *handlers.OrderHandler
	Drivers     *handlers.DriverHandler
	Assignments *handlers.AssignmentHandler
	// RateLimit is optional.
	RateLimit func(http.Handler) http.Handler
	// Metrics defaults to the default prometheus registry.
	Metrics http.Handler
}

// New constructs a chi-based http.Handler with base middleware and routes.
// Event streams are mounted outside the request timeout.
func New(d Deps) http.Handler {
	if d.Metrics == nil {
		d.Metrics = promhttp.Handler()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(obs.Observability(d.Logger))
	r.Use(middleware.Recoverer)
	if d.RateLimit != nil {
		r.Use(d.RateLimit)
	}

	r.Get("/ping", d.Base.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(d.Base.HealthcheckHead))
	r.Method(http.MethodGet, "/metrics", d.Metrics)

	r.Get("/orders/{id}/tracking/stream", d.Orders.Stream)
	r.Get("/drivers/{id}/offers/stream", d.Drivers.Offers)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", d.Orders.Create)
			r.Get("/{id}", d.Orders.Get)
			r.Post("/{id}/cancel", d.Orders.Cancel)
			r.Post("/{id}/status", d.Orders.UpdateStatus)
			r.Post("/{id}/dispatch", d.Orders.Dispatch)
			r.Get("/{id}/timeline", d.Orders.Timeline)
			r.Get("/{id}/eta", d.Orders.ETA)
		})

		r.Route("/drivers", func(r chi.Router) {
			r.Post("/", d.Drivers.Create)
			r.Get("/", d.Drivers.List)
			r.Get("/{id}", d.Drivers.Get)
			r.Post("/{id}/availability", d.Drivers.SetAvailability)
			r.Post("/{id}/location", d.Drivers.ReportLocation)
		})

		r.Post("/assignments/{id}/{action}", d.Assignments.Action)
	})

	r.NotFound(http.HandlerFunc(d.Base.NotFound))

	return r
}
