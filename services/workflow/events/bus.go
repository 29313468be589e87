// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events implements the in-process publish/subscribe bus between
// the session store and its consumers (dashboard WebSockets, tests).
//
// Publish is fire-and-forget: every subscriber has a bounded channel, a
// full channel drops the event for that subscriber and increments a drop
// counter. A publisher is never blocked by a slow or absent consumer; that
// property is what keeps the dashboard hook endpoint fast.
//
// Thread Safety:
//
//	Bus is safe for concurrent publishers and subscribers.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 256

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccw_events_published_total",
		Help: "Total events published to the bus by type",
	}, []string{"type"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccw_events_dropped_total",
		Help: "Total events dropped because a subscriber channel was full",
	})
)

// =============================================================================
// Bus
// =============================================================================

// subscriber is the bus-side view of one subscription.
type subscriber struct {
	id      string
	ch      chan Event
	types   map[Type]struct{} // nil = all types
	dropped atomic.Uint64
}

// Subscription is the consumer-side handle returned by Subscribe.
//
// Receive events from C. Call Cancel when done; after Cancel returns, C is
// closed, delivers anything still buffered, and then reports closed.
type Subscription struct {
	// ID uniquely identifies this subscription.
	ID string

	// C delivers events in publish order. Closed by Cancel.
	C <-chan Event

	bus  *Bus
	sub  *subscriber
	once sync.Once
}

// Cancel removes the subscription from the bus and closes the channel.
// Safe to call multiple times.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s.sub)
	})
}

// Dropped returns how many events this subscriber has lost to a full
// channel since it subscribed.
func (s *Subscription) Dropped() uint64 {
	return s.sub.dropped.Load()
}

// Bus broadcasts events to any number of subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	bufferSize  int
	closed      bool
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBufferSize sets the per-subscriber channel capacity.
// Values below 1 are ignored.
func WithBufferSize(size int) BusOption {
	return func(b *Bus) {
		if size >= 1 {
			b.bufferSize = size
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subscribers: make(map[string]*subscriber),
		bufferSize:  DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber.
//
// Inputs:
//
//	types - Event types to receive. Empty means all types.
//
// Outputs:
//
//	*Subscription - Handle with the receive channel and Cancel. A
//	  subscription created on a closed bus is returned pre-cancelled.
func (b *Bus) Subscribe(types ...Type) *Subscription {
	sub := &subscriber{
		id: uuid.NewString(),
		ch: make(chan Event, b.bufferSize),
	}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return &Subscription{ID: sub.id, C: sub.ch, bus: b, sub: sub}
	}
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	return &Subscription{ID: sub.id, C: sub.ch, bus: b, sub: sub}
}

// Publish broadcasts the event to every matching subscriber without
// blocking.
//
// Description:
//
//	Stamps the timestamp when empty, then performs a non-blocking send of
//	a per-subscriber clone. A subscriber whose channel is full loses the
//	event; the loss is counted, never propagated. Each subscriber sees
//	events in publish order.
//
//	Sends happen under the read lock. That is safe because sends never
//	block and channels are only closed under the write lock, which cannot
//	be held concurrently.
func (b *Bus) Publish(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = Now()
	}
	eventsPublished.WithLabelValues(string(event.Type)).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event.Clone():
		default:
			sub.dropped.Add(1)
			eventsDropped.Inc()
			slog.Debug("event dropped for slow subscriber",
				slog.String("subscription_id", sub.id),
				slog.String("event_type", string(event.Type)),
				slog.Uint64("total_dropped", sub.dropped.Load()))
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close cancels all subscriptions and rejects future publishes. Safe to
// call multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

// remove detaches one subscriber and closes its channel.
func (b *Bus) remove(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub.id]; !ok {
		// Already removed by Close; the channel is closed.
		return
	}
	delete(b.subscribers, sub.id)
	close(sub.ch)
}

// wants reports whether the subscriber's type filter matches.
func (s *subscriber) wants(t Type) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}
