// Package mailbox provides the ordered, non-blocking message delivery used
// between simulation components. Every component owns one Mailbox and drains
// it from a single goroutine, so handlers never need their own locking.
package mailbox

import (
	"context"
	"sync"
)

// Sender delivers messages of type M. Send never blocks the caller.
type Sender[M any] interface {
	Send(msg M)
}

// Mailbox is an unbounded FIFO queue. Messages from one sender are received
// in the order they were sent.
type Mailbox[M any] struct {
	mu     sync.Mutex
	queue  []M
	notify chan struct{}
	closed bool
}

// New creates an empty mailbox
func New[M any]() *Mailbox[M] {
	return &Mailbox[M]{notify: make(chan struct{}, 1)}
}

// Send appends msg to the queue. Messages sent after Close are dropped.
func (m *Mailbox[M]) Send(msg M) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Receive blocks until a message is available or ctx is done.
func (m *Mailbox[M]) Receive(ctx context.Context) (M, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			var zero M
			m.queue[0] = zero
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return msg, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero M
			return zero, ctx.Err()
		case <-m.notify:
		}
	}
}

// Len returns the number of queued messages
func (m *Mailbox[M]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close drops the pending queue and rejects further sends.
func (m *Mailbox[M]) Close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
}

// Func adapts a plain function to a Sender.
type Func[M any] func(msg M)

// Send calls f(msg)
func (f Func[M]) Send(msg M) { f(msg) }

// Map returns a Sender that converts each message before handing it to dst.
// Components use it to receive replies of another component's type in their
// own mailbox.
func Map[From, To any](dst Sender[To], convert func(From) To) Sender[From] {
	return Func[From](func(msg From) {
		dst.Send(convert(msg))
	})
}

// Chan returns a Sender writing into ch. A full channel drops the message
// rather than blocking the sending component.
func Chan[M any](ch chan<- M) Sender[M] {
	return Func[M](func(msg M) {
		select {
		case ch <- msg:
		default:
		}
	})
}

// Ask sends the request built by build and waits for the first reply.
// It is meant for callers outside the simulation (API handlers, the
// recorder, tests); components never block on each other.
func Ask[Req, Rep any](ctx context.Context, dst Sender[Req], build func(replyTo Sender[Rep]) Req) (Rep, error) {
	ch := make(chan Rep, 1)
	dst.Send(build(Chan[Rep](ch)))

	select {
	case rep := <-ch:
		return rep, nil
	case <-ctx.Done():
		var zero Rep
		return zero, ctx.Err()
	}
}
