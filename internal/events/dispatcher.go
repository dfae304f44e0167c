package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atmx/settlement-engine/internal/metrics"
	"github.com/atmx/settlement-engine/internal/model"
)

// Dispatcher buffers events and delivers them to every sink from a single
// goroutine, so sinks see events in commit order. Notify never blocks: when
// the buffer is full the event is dropped and counted.
type Dispatcher struct {
	queue   chan model.Event
	sinks   []Sink
	timeout time.Duration
	log     *zap.Logger
}

// NewDispatcher creates a dispatcher with the given buffer size and
// per-sink delivery timeout.
func NewDispatcher(buffer int, timeout time.Duration, log *zap.Logger, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		queue:   make(chan model.Event, buffer),
		sinks:   sinks,
		timeout: timeout,
		log:     log,
	}
}

func (d *Dispatcher) Notify(e model.Event) {
	select {
	case d.queue <- e:
	default:
		// Drop if buffer full to avoid blocking settlement.
		metrics.EventDrops.Inc()
		d.log.Warn("event dropped, dispatch buffer full",
			zap.String("type", e.Type),
			zap.Int64("market_id", e.MarketID),
		)
	}
}

// Run delivers events until ctx is cancelled, then drains what is already
// queued before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case e := <-d.queue:
			d.deliver(context.Background(), e)
		case <-ctx.Done():
			for {
				select {
				case e := <-d.queue:
					d.deliver(context.Background(), e)
				default:
					return nil
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e model.Event) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Publish(sctx, e)
		cancel()
		if err != nil {
			metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			d.log.Error("event delivery failed",
				zap.String("sink", s.Name()),
				zap.String("type", e.Type),
				zap.Int64("market_id", e.MarketID),
				zap.Error(err),
			)
		}
	}
}
