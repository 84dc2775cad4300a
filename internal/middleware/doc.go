// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

/*
Package middleware provides the chi middleware shared by the admin API.

  - RequestID: assigns a UUID request ID, echoes it in X-Request-ID and
    seeds the logging context with request and correlation IDs.
  - PrometheusMetrics: records request counts and latency per route
    pattern, so /api/v1/destinations/{id} is one series regardless of ID.

Both follow chi's func(http.Handler) http.Handler shape:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
