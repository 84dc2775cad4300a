// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/tribewatch/internal/auth"
	"github.com/tomtom215/tribewatch/internal/middleware"
)

// Router wires handlers to routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	auth          *auth.Middleware
}

// NewRouter creates a router. A nil jwtManager leaves /api/v1 open.
func NewRouter(handler *Handler, chiMiddleware *ChiMiddleware, jwtManager *auth.JWTManager) *Router {
	if chiMiddleware == nil {
		chiMiddleware = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: chiMiddleware,
		auth: auth.NewMiddleware(jwtManager, func(w http.ResponseWriter, _ *http.Request, message string) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tribewatch"`)
			respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized: "+message, nil)
		}),
	}
}

// Setup builds the chi handler.
func (router *Router) Setup() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed", nil)
	})

	// Monitoring stays unauthenticated.
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(router.auth.Authenticate)

		r.Get("/loops", h.Loops)

		r.Get("/subscriptions", h.ListSubscriptions)
		r.Post("/subscriptions", h.AddSubscription)
		r.Delete("/subscriptions", h.RemoveSubscription)

		r.Get("/destinations", h.ListDestinations)
		r.Put("/destinations/{id}", h.PutDestination)
		r.Delete("/destinations/{id}", h.DeleteDestination)

		r.Get("/events", h.Events)
		r.Get("/stream", h.Stream)
	})

	return r
}
