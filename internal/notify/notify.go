// Package notify broadcasts change events to explicit observers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	TransactionsChanged Kind = "transactions.changed"
	AccountChanged      Kind = "account.changed"
)

type Event struct {
	ID             uuid.UUID
	Kind           Kind
	TransactionIDs []int64
	At             time.Time
}

func NewEvent(kind Kind, ids ...int64) Event {
	return Event{ID: uuid.New(), Kind: kind, TransactionIDs: ids, At: time.Now().UTC()}
}

// Publisher is what the engine depends on.
type Publisher interface {
	Publish(e Event)
}

const DefaultBuffer = 16

type Broadcaster struct {
	mu       sync.RWMutex
	nextID   int
	channels map[int]chan Event
	dropped  atomic.Int64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{channels: make(map[int]chan Event)}
}

// Subscribe returns a buffered channel of events and a cancel func that closes it.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.channels[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.channels, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// CallbackBuffer is how many events an OnChange observer may fall behind before it starts
// missing them.
const CallbackBuffer = 64

// OnChange registers fn. Calls happen on one goroutine per observer, in publish order.
func (b *Broadcaster) OnChange(fn func(Event)) (cancel func()) {
	ch, unsubscribe := b.Subscribe(CallbackBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			fn(e)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			<-done
		})
	}
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.channels {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many channel deliveries were skipped because a buffer was full.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}
