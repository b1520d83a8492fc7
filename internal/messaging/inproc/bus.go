package inproc

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"sphere_canvas/internal/domain"
)

var (
	ErrNoSubscribers       = errors.New("no subscribers registered in bus")
	ErrSubscriberQueueFull = errors.New("subscriber queue is full")
)

// Bus fans system events out to every registered subscriber. Publish never blocks: a subscriber
// whose queue is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan domain.SystemEvent
	buffer int
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]chan domain.SystemEvent),
		buffer: buffer,
	}
}

func (b *Bus) Register(subscriberID string) <-chan domain.SystemEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[subscriberID]; ok {
		return ch
	}
	ch := make(chan domain.SystemEvent, b.buffer)
	b.subs[subscriberID] = ch
	return ch
}

func (b *Bus) Unregister(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[subscriberID]
	if !ok {
		return
	}
	delete(b.subs, subscriberID)
	close(ch)
}

func (b *Bus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.subs))
	for id := range b.subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (b *Bus) Publish(evt domain.SystemEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.subs) == 0 {
		return ErrNoSubscribers
	}

	var errs []error
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			errs = append(errs, fmt.Errorf("%w: %s", ErrSubscriberQueueFull, id))
		}
	}
	return errors.Join(errs...)
}
