// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

/*
Package services adapts components with their own lifecycle to suture's
context-aware Serve pattern.

  - HTTPServerService runs an *http.Server and shuts it down gracefully when
    its context is canceled.
  - BusService owns the NATS bus connection and closes it (and the embedded
    server, if any) when the tree stops.

Components that already implement Serve(ctx) error, such as the WebSocket
hub and the tracker loops, are added to the tree directly.
*/
package services
