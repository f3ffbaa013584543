// Unit tests for the metrics registry and Prometheus rendering
//
// Copyright (C) 2026  dw3000-go authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"strings"
	"sync"
	"testing"
)

func TestCounterBasic(t *testing.T) {
	c := NewCounter("test_counter", "A test counter")

	if v := c.Get(nil); v != 0 {
		t.Errorf("initial value = %d, want 0", v)
	}
	c.Inc(nil)
	c.Add(nil, 10)
	if v := c.Get(nil); v != 11 {
		t.Errorf("value = %d, want 11", v)
	}
	if c.Name() != "test_counter" || c.Type() != TypeCounter {
		t.Errorf("identity = %s/%s", c.Name(), c.Type())
	}
}

func TestCounterLabels(t *testing.T) {
	c := NewCounter("dw3000_rx_errors_total", "Classified receive errors")

	phy := Labels{"reason": "phy_header"}
	sfd := Labels{"reason": "sfd_timeout"}
	c.Inc(phy)
	c.Inc(phy)
	c.Inc(sfd)

	if v := c.Get(phy); v != 2 {
		t.Errorf("phy_header = %d, want 2", v)
	}
	if v := c.Get(sfd); v != 1 {
		t.Errorf("sfd_timeout = %d, want 1", v)
	}
	if v := c.Get(Labels{"reason": "bad_crc"}); v != 0 {
		t.Errorf("unseen label = %d, want 0", v)
	}
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter("c", "")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc(Labels{"w": "x"})
			}
		}()
	}
	wg.Wait()
	if v := c.Get(Labels{"w": "x"}); v != 8000 {
		t.Errorf("concurrent total = %d, want 8000", v)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("dw3000_coex_armed", "Line state")

	g.Set(nil, 1)
	if v := g.Get(nil); v != 1 {
		t.Errorf("after Set = %v, want 1", v)
	}
	g.Dec(nil)
	if v := g.Get(nil); v != 0 {
		t.Errorf("after Dec = %v, want 0", v)
	}
	g.Add(nil, 2.5)
	if v := g.Get(nil); v != 2.5 {
		t.Errorf("after Add = %v, want 2.5", v)
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("lat", "latency", []float64{0.01, 0.1, 1})

	h.Observe(nil, 0.005)
	h.Observe(nil, 0.05)
	h.Observe(nil, 5)

	var sb strings.Builder
	h.Write(&sb)
	out := sb.String()

	for _, want := range []string{
		`lat_bucket{le="0.01"} 1`,
		`lat_bucket{le="0.1"} 2`,
		`lat_bucket{le="1"} 2`,
		`lat_bucket{le="+Inf"} 3`,
		"lat_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExponentialBuckets(t *testing.T) {
	got := ExponentialBuckets(0.001, 10, 4)
	want := []float64{0.001, 0.01, 0.1, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bucket[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPrometheusRendering(t *testing.T) {
	c := NewCounter("dw3000_exchanges_total", "Completed exchanges")
	c.Inc(Labels{"result": "tx_done"})

	var sb strings.Builder
	c.Write(&sb)
	out := sb.String()

	for _, want := range []string{
		"# HELP dw3000_exchanges_total Completed exchanges\n",
		"# TYPE dw3000_exchanges_total counter\n",
		`dw3000_exchanges_total{result="tx_done"} 1` + "\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLabelEscaping(t *testing.T) {
	g := NewGauge("g", "")
	g.Set(Labels{"path": `a"b\c`}, 1)

	var sb strings.Builder
	g.Write(&sb)
	if want := `g{path="a\"b\\c"} 1`; !strings.Contains(sb.String(), want) {
		t.Errorf("output missing %q:\n%s", want, sb.String())
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("a_total", "first")
	g := NewGauge("b", "second")

	if err := r.Register(c); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(g); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(NewCounter("a_total", "dup")); err == nil {
		t.Error("duplicate registration accepted")
	}
	if r.Get("a_total") != Metric(c) {
		t.Error("Get returned the wrong metric")
	}

	c.Inc(nil)
	g.Set(nil, 3)
	out := r.Gather()
	// Registration order is preserved in the output.
	if ia, ib := strings.Index(out, "a_total"), strings.Index(out, "# HELP b "); ia < 0 || ib < 0 || ia > ib {
		t.Errorf("gather order wrong:\n%s", out)
	}
}

func TestDriverMetricsSet(t *testing.T) {
	r := NewRegistry()
	dm := NewDriverMetrics(r)

	dm.ExchangesTotal.Inc(Labels{"result": "rx_good"})
	dm.DeviceUp.Set(nil, 1)
	dm.UpdateSystem()

	out := r.Gather()
	for _, want := range []string{
		`dw3000_exchanges_total{result="rx_good"} 1`,
		"dw3000_device_up 1",
		"dw3000_go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("gather missing %q", want)
		}
	}
	if dm.Registry() != r {
		t.Error("Registry accessor mismatch")
	}
}
