package status

import (
	"dw3000-go/pkg/metrics"
)

// Publisher mirrors classifier counters into a labeled metric. The
// classifier counters are cumulative and caller-owned; the publisher tracks
// the last snapshot it saw and adds only the deltas, so publishing is safe
// to repeat on any schedule.
type Publisher struct {
	rxErrors *metrics.Counter
	last     Counters
}

// NewPublisher creates a publisher feeding rxErrors with reason labels.
func NewPublisher(rxErrors *metrics.Counter) *Publisher {
	return &Publisher{rxErrors: rxErrors}
}

// Publish mirrors the counter movement since the previous call.
func (p *Publisher) Publish(c Counters) {
	prev := make(map[string]uint32, 17)
	p.last.Each(func(name string, value uint32) {
		prev[name] = value
	})
	c.Each(func(name string, value uint32) {
		if value > prev[name] {
			p.rxErrors.Add(metrics.Labels{"reason": name}, uint64(value-prev[name]))
		}
	})
	p.last = c
}
