// Radio driver metric definitions
//
// Defines the metric set the diagnostics server exports:
// - Exchange outcomes and durations
// - Receive error reasons mirrored from the status classifier
// - Coexistence line activity
// - Go runtime samples
//
// Copyright (C) 2026  dw3000-go authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"time"
)

// DriverMetrics holds the driver metric set, registered on one registry.
type DriverMetrics struct {
	// Exchange metrics. ExchangesTotal is labeled result=tx_done,
	// rx_good, rx_error or rx_timeout.
	ExchangesTotal  *Counter
	ExchangeSeconds *Histogram

	// RxErrorsTotal carries reason labels mirrored from the status
	// classifier counters.
	RxErrorsTotal *Counter

	// Coexistence line activity.
	CoexArmsTotal *Counter
	CoexArmed     *Gauge

	// Device session state.
	DeviceUp *Gauge

	// Go runtime samples, refreshed by UpdateSystem.
	GoGoroutines  *Gauge
	GoMemoryAlloc *Gauge
	UptimeSeconds *Gauge

	startTime time.Time
	registry  *Registry
}

// NewDriverMetrics creates the driver metric set and registers it on r.
func NewDriverMetrics(r *Registry) *DriverMetrics {
	dm := &DriverMetrics{
		startTime: time.Now(),
		registry:  r,
	}

	dm.ExchangesTotal = NewCounter("dw3000_exchanges_total",
		"Completed exchanges by result")
	dm.ExchangeSeconds = NewHistogram("dw3000_exchange_duration_seconds",
		"Wall time from exchange start to completion", DefaultBuckets())
	dm.RxErrorsTotal = NewCounter("dw3000_rx_errors_total",
		"Classified receive errors by reason")
	dm.CoexArmsTotal = NewCounter("dw3000_coex_arms_total",
		"Coexistence grant line arm events")
	dm.CoexArmed = NewGauge("dw3000_coex_armed",
		"Whether the coexistence line is currently held (1) or released (0)")
	dm.DeviceUp = NewGauge("dw3000_device_up",
		"Whether a device session is open (1) or not (0)")
	dm.GoGoroutines = NewGauge("dw3000_go_goroutines",
		"Number of goroutines")
	dm.GoMemoryAlloc = NewGauge("dw3000_go_memory_alloc_bytes",
		"Heap bytes allocated and in use")
	dm.UptimeSeconds = NewGauge("dw3000_uptime_seconds",
		"Seconds since the diagnostics process started")

	r.MustRegister(dm.ExchangesTotal)
	r.MustRegister(dm.ExchangeSeconds)
	r.MustRegister(dm.RxErrorsTotal)
	r.MustRegister(dm.CoexArmsTotal)
	r.MustRegister(dm.CoexArmed)
	r.MustRegister(dm.DeviceUp)
	r.MustRegister(dm.GoGoroutines)
	r.MustRegister(dm.GoMemoryAlloc)
	r.MustRegister(dm.UptimeSeconds)

	return dm
}

// Registry returns the registry the set is registered on.
func (dm *DriverMetrics) Registry() *Registry {
	return dm.registry
}

// UpdateSystem refreshes the runtime sample gauges.
func (dm *DriverMetrics) UpdateSystem() {
	var mem goruntime.MemStats
	goruntime.ReadMemStats(&mem)
	dm.GoGoroutines.Set(nil, float64(goruntime.NumGoroutine()))
	dm.GoMemoryAlloc.Set(nil, float64(mem.Alloc))
	dm.UptimeSeconds.Set(nil, time.Since(dm.startTime).Seconds())
}
