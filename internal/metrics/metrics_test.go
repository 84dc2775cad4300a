// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordCycle(t *testing.T) {
	before := testutil.ToFloat64(CyclesTotal.WithLabelValues("tower"))

	RecordCycle("tower", 250*time.Millisecond)

	if got := testutil.ToFloat64(CyclesTotal.WithLabelValues("tower")); got != before+1 {
		t.Errorf("CyclesTotal = %v, want %v", got, before+1)
	}

	metric := &dto.Metric{}
	observer := CycleDuration.WithLabelValues("tower")
	if err := observer.(interface{ Write(*dto.Metric) error }).Write(metric); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if metric.GetHistogram().GetSampleCount() == 0 {
		t.Error("expected at least one histogram sample")
	}
}

func TestRecordDelivery(t *testing.T) {
	tests := []struct {
		kind, sink, result string
	}{
		{"conquer", "discord", "success"},
		{"conquer", "discord", "permission_denied"},
		{"od", "webhook", "transport_error"},
	}

	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			c := Deliveries.WithLabelValues(tt.kind, tt.sink, tt.result)
			before := testutil.ToFloat64(c)
			RecordDelivery(tt.kind, tt.sink, tt.result)
			if got := testutil.ToFloat64(c); got != before+1 {
				t.Errorf("Deliveries = %v, want %v", got, before+1)
			}
		})
	}
}

func TestRecordLedgerOp(t *testing.T) {
	ok := LedgerOperations.WithLabelValues("badger", "claim", "ok")
	failed := LedgerOperations.WithLabelValues("badger", "claim", "error")
	okBefore := testutil.ToFloat64(ok)
	failedBefore := testutil.ToFloat64(failed)

	RecordLedgerOp("badger", "claim", nil)
	RecordLedgerOp("badger", "claim", errors.New("closed"))

	if testutil.ToFloat64(ok) != okBefore+1 {
		t.Error("expected ok counter to increase")
	}
	if testutil.ToFloat64(failed) != failedBefore+1 {
		t.Error("expected error counter to increase")
	}
}

func TestSetLoopRunning(t *testing.T) {
	SetLoopRunning("wall", true)
	if got := testutil.ToFloat64(LoopsRunning.WithLabelValues("wall")); got != 1 {
		t.Errorf("LoopsRunning = %v, want 1", got)
	}
	SetLoopRunning("wall", false)
	if got := testutil.ToFloat64(LoopsRunning.WithLabelValues("wall")); got != 0 {
		t.Errorf("LoopsRunning = %v, want 0", got)
	}
}
