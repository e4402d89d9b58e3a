package jsonrpc

import (
	"log/slog"
	"sync"

	"github.com/xamun-dev/xamun/internal/models"
)

// DefaultOutboxSize is the number of notifications buffered per connection.
const DefaultOutboxSize = 256

// stickyKinds are replayed to a connection when it attaches, so a client that
// connects late still sees the current state and catalog.
var stickyKinds = []models.OutboundType{models.OutStateSnapshot, models.OutCatalog}

// Publisher fans host notifications out to every attached transport. Notify
// never blocks: each transport has its own outbox and writer goroutine, and a
// notification that does not fit in a full outbox is dropped.
type Publisher struct {
	logger *slog.Logger
	size   int

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	latest map[models.OutboundType]*Notification
}

type subscriber struct {
	out  chan *Notification
	done chan struct{}
}

// NewPublisher creates a Publisher with outboxes of the given size. A size of
// zero or less uses DefaultOutboxSize.
func NewPublisher(size int, logger *slog.Logger) *Publisher {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		logger: logger,
		size:   size,
		subs:   make(map[*subscriber]struct{}),
		latest: make(map[models.OutboundType]*Notification),
	}
}

// Notify queues a notification for every attached transport.
func (p *Publisher) Notify(kind models.OutboundType, payload any) {
	n := &Notification{JSONRPC: "2.0", Method: string(kind), Params: payload}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range stickyKinds {
		if k == kind {
			p.latest[kind] = n
		}
	}
	for sub := range p.subs {
		select {
		case sub.out <- n:
		default:
			p.logger.Warn("dropping notification, outbox full", "method", n.Method)
		}
	}
}

// Attach starts delivering notifications to t. The returned function stops
// delivery, flushes the outbox and waits for the writer to finish.
func (p *Publisher) Attach(t *Transport) (detach func()) {
	sub := &subscriber{
		out:  make(chan *Notification, p.size),
		done: make(chan struct{}),
	}

	p.mu.Lock()
	for _, k := range stickyKinds {
		if n, ok := p.latest[k]; ok {
			select {
			case sub.out <- n:
			default:
			}
		}
	}
	p.subs[sub] = struct{}{}
	p.mu.Unlock()

	write := func(n *Notification) {
		if err := t.WriteNotification(n); err != nil {
			p.logger.Debug("notification write error", "method", n.Method, "error", err)
		}
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case n := <-sub.out:
				write(n)
			case <-sub.done:
				// Flush what was queued before detaching.
				for {
					select {
					case n := <-sub.out:
						write(n)
					default:
						return
					}
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, sub)
			p.mu.Unlock()
			close(sub.done)
			<-finished
		})
	}
}
