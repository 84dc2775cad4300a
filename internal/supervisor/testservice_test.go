// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// testService runs until canceled, optionally failing its first starts.
type testService struct {
	name     string
	starts   atomic.Int32
	stops    atomic.Int32
	fails    atomic.Int32
	maxFails int32
}

func newTestService(name string) *testService {
	return &testService{name: name}
}

func (s *testService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	defer s.stops.Add(1)

	if s.maxFails > 0 && s.fails.Add(1) <= s.maxFails {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *testService) String() string {
	return s.name
}
