package engine

import (
	"context"
	"io"
	"sync"
)

// DefaultBridgeCapacity bounds how many lines may wait for the consumer.
const DefaultBridgeCapacity = 100

// NewBridge returns the two ends of a bounded line relay. The Sender is owned
// by a single blocking reader goroutine; the Receiver by a single consumer.
func NewBridge(capacity int) (*Sender, *Receiver) {
	if capacity <= 0 {
		capacity = DefaultBridgeCapacity
	}
	ch := make(chan string, capacity)
	done := make(chan struct{})
	return &Sender{ch: ch, done: done}, &Receiver{ch: ch, done: done}
}

// Sender is the producer end of a bridge.
type Sender struct {
	ch        chan string
	done      <-chan struct{}
	closeOnce sync.Once
}

// Send blocks until the line is queued. It returns false once the receiver
// has been closed, at which point the producer should stop.
func (s *Sender) Send(line string) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- line:
		return true
	case <-s.done:
		return false
	}
}

// Close signals end-of-stream to the receiver.
func (s *Sender) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Receiver is the consumer end of a bridge.
type Receiver struct {
	ch        <-chan string
	done      chan struct{}
	closeOnce sync.Once
}

// Next waits for the next line. It returns io.EOF after the producer closes
// and every queued line has been delivered.
func (r *Receiver) Next(ctx context.Context) (string, error) {
	select {
	case line, ok := <-r.ch:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// C exposes the raw channel for use in a select loop. It is closed at end-of-stream.
func (r *Receiver) C() <-chan string {
	return r.ch
}

// Close drops the consumer. Blocked and future Sends return false.
func (r *Receiver) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}
