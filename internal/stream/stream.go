package stream

import (
	"context"
	"sync"
	"time"
)

// ConversionEvent announces the terminal outcome of one conversion,
// including background jobs whose callers otherwise only see the
// artifact listing.
type ConversionEvent struct {
	Filename  string    `json:"filename"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	URI       string    `json:"uri,omitempty"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs conversion events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan ConversionEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan ConversionEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan ConversionEvent {
	ch := make(chan ConversionEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt ConversionEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
