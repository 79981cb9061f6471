package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/kamir/giftbot/internal/event"
)

var _ Source = (*ChannelSource)(nil)

// ChannelSource is an in-process Source backed by an append-only log. Every
// Open replays the log from the requested position, which makes it usable
// for restart and redelivery tests.
type ChannelSource struct {
	mu     sync.Mutex
	log    []event.Event
	wake   chan struct{}
	closed bool
	opens  int
}

// NewChannelSource creates an empty in-process source.
func NewChannelSource() *ChannelSource {
	return &ChannelSource{wake: make(chan struct{})}
}

// Send appends ev. Positions must be strictly increasing.
func (s *ChannelSource) Send(ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if n := len(s.log); n > 0 && ev.Position <= s.log[n-1].Position {
		return fmt.Errorf("source: position %d not after %d", ev.Position, s.log[n-1].Position)
	}
	s.log = append(s.log, ev)
	close(s.wake)
	s.wake = make(chan struct{})
	return nil
}

// CloseInput marks the log complete; streams return io.EOF once drained.
func (s *ChannelSource) CloseInput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.wake)
}

// Opens returns how many streams have been opened so far.
func (s *ChannelSource) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func (s *ChannelSource) Open(ctx context.Context, kinds []event.Kind, from uint64) (Stream, error) {
	s.mu.Lock()
	s.opens++
	s.mu.Unlock()
	return &channelStream{src: s, kinds: kinds, from: from}, nil
}

type channelStream struct {
	src    *ChannelSource
	kinds  []event.Kind
	from   uint64
	idx    int
	closed bool
}

func (c *channelStream) Next(ctx context.Context) (event.Event, error) {
	for {
		if c.closed {
			return event.Event{}, ErrClosed
		}
		c.src.mu.Lock()
		for c.idx < len(c.src.log) {
			ev := c.src.log[c.idx]
			c.idx++
			if ev.Position < c.from || !event.HasKind(c.kinds, ev.Kind) {
				continue
			}
			c.src.mu.Unlock()
			return ev, nil
		}
		if c.src.closed {
			c.src.mu.Unlock()
			return event.Event{}, io.EOF
		}
		wake := c.src.wake
		c.src.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		}
	}
}

func (c *channelStream) Close() error {
	c.closed = true
	return nil
}
