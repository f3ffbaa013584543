package device

import (
	"context"
	"sync"

	"dw3000-go/pkg/status"
	"dw3000-go/pkg/uwberr"
)

// ExchangeEvent is the outcome of one TX/RX exchange.
type ExchangeEvent struct {
	Status status.Snapshot

	TxDone    bool
	RxGood    bool
	RxTimeout bool
	RxError   bool
}

// Completion delivers one exchange outcome from the interrupt goroutine to
// the waiting caller. It completes at most once.
type Completion struct {
	event ExchangeEvent
	err   error
	done  chan struct{}
	once  sync.Once
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Test reports whether the outcome has arrived.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Completion) complete(ev ExchangeEvent, err error) {
	c.once.Do(func() {
		c.event = ev
		c.err = err
		close(c.done)
	})
}

// Wait blocks until the outcome arrives or ctx ends.
func (c *Completion) Wait(ctx context.Context) (ExchangeEvent, error) {
	select {
	case <-c.done:
		return c.event, c.err
	case <-ctx.Done():
		return ExchangeEvent{}, uwberr.Wrap(ctx.Err(), uwberr.ErrHWTimeout, "exchange wait abandoned").
			SetOp("wait_exchange")
	}
}
