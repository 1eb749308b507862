package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
)

const (
	RealtimeEventAffiliateChanged = "affiliate-change"
	realtimeEventHeartbeat        = "heartbeat"
	realtimeSourceBackend         = "affiliatedesk-api"
)

// RealtimeMessage is one affiliate change fanned out to stream subscribers.
type RealtimeMessage struct {
	EventType string
	Change    affiliates.ChangeEvent
}

// RealtimeDispatcher broadcasts affiliate changes to every connected dashboard.
// Slow subscribers drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id      int64
	actorID string
	stream  chan RealtimeMessage
	once    sync.Once
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for actorID until ctx ends or cleanup is called.
// The returned channel is closed on cleanup.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, actorID string) (<-chan RealtimeMessage, func()) {
	if actorID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:      d.nextSequence(),
		actorID: actorID,
		stream:  make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	done := make(chan struct{})
	cleanup := func() {
		subscriber.once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-done:
		}
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the change to every subscriber.
func (d *RealtimeDispatcher) Publish(change affiliates.ChangeEvent) {
	if change.Action == "" {
		return
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}
	if change.Source == "" {
		change.Source = realtimeSourceBackend
	}
	message := RealtimeMessage{EventType: RealtimeEventAffiliateChanged, Change: change}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if subscriber, ok := d.subscribers[subscriberID]; ok {
		delete(d.subscribers, subscriberID)
		close(subscriber.stream)
	}
}
