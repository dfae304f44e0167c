// Package events delivers settlement notifications to observers: an
// in-memory collector for tests, and an asynchronous dispatcher that fans
// events out to the WebSocket hub, Kafka and the S3 archive.
package events

import (
	"context"
	"sync"

	"github.com/atmx/settlement-engine/internal/model"
)

// Sink receives events from the Dispatcher.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e model.Event) error
}

// Collector records every event it is notified of. Safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	events []model.Event
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Notify(e model.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

// Publish makes a Collector usable as a Sink.
func (c *Collector) Publish(_ context.Context, e model.Event) error {
	c.Notify(e)
	return nil
}

func (c *Collector) Name() string { return "collector" }

// Events returns a copy of the recorded events in order.
func (c *Collector) Events() []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Event, len(c.events))
	copy(out, c.events)
	return out
}

// OfType returns the recorded events of one type.
func (c *Collector) OfType(typ string) []model.Event {
	var out []model.Event
	for _, e := range c.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
