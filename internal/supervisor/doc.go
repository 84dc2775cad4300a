// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

/*
Package supervisor provides process supervision for TribeWatch using suture v4.

All long-running services live in one hierarchical tree. Crashed services are
restarted with backoff, a failure in one layer does not take down the others,
and canceling the root context shuts everything down in order.

# Overview

	RootSupervisor ("tribewatch")
	├── DataSupervisor ("data-layer")
	│   └── Maintenance
	├── TrackerSupervisor ("tracker-layer")
	│   ├── LoopController
	│   └── TrackerLoop per kind (added and removed at runtime)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket Hub
	│   └── BusService (if nats.enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Tracker loops are the only services whose membership changes while the tree
runs. The loop controller adds them through AddTrackerService and removes them
through RemoveTrackerService, which waits for the loop to stop so that a
cycle never overlaps with its successor.

# Logging

Supervisor events (service failures, restarts, backoff) are logged through
sutureslog, bridged to the application's zerolog logger with
logging.NewSlogLogger.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Scheduler))
	if err != nil {
	    return err
	}
	tree.AddDataService(maintenance)
	tree.AddTrackerService(controller)
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Scheduler.ShutdownTimeout))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}
*/
package supervisor
