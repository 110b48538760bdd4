package production

import (
	"sync"

	"halcyon.studio/cinema/internal/domain"
)

const subscriberBuffer = 16

// Broker fans progress events out to any number of subscribers. A slow
// subscriber loses its oldest buffered events, never the newest.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan domain.Progress
	next   int
	last   *domain.Progress
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan domain.Progress)}
}

// Subscribe returns a channel of events and a function that ends the
// subscription. The latest event, if any, is delivered first. The
// channel is closed when the broker closes or cancel is called.
func (b *Broker) Subscribe() (<-chan domain.Progress, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.Progress, subscriberBuffer)
	if b.last != nil {
		ch <- *b.last
	}
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers p to every subscriber without blocking.
func (b *Broker) Publish(p domain.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = &p
	for _, ch := range b.subs {
		select {
		case ch <- p:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- p
		}
	}
}

// Last returns the most recent event.
func (b *Broker) Last() (domain.Progress, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return domain.Progress{}, false
	}
	return *b.last, true
}

// Close ends every subscription. Publishing after Close is a no-op.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
