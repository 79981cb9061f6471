package source

import (
	"context"
	"sync"

	"github.com/kamir/giftbot/internal/event"
)

type prefetched struct {
	ev  event.Event
	err error
}

// prefetchStream reads ahead of the consumer into a bounded buffer. When the
// buffer is full the reader blocks, so the consumer still controls the pace.
type prefetchStream struct {
	inner     Stream
	items     chan prefetched
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Prefetch wraps inner with a read-ahead goroutine holding up to size events.
// The first error from inner is delivered in order and stops the read-ahead.
func Prefetch(inner Stream, size int) Stream {
	if size <= 0 {
		return inner
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &prefetchStream{
		inner:  inner,
		items:  make(chan prefetched, size),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run(ctx)
	return p
}

func (p *prefetchStream) run(ctx context.Context) {
	defer close(p.done)
	defer close(p.items)
	for {
		ev, err := p.inner.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case p.items <- prefetched{ev: ev, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (p *prefetchStream) Next(ctx context.Context) (event.Event, error) {
	select {
	case item, ok := <-p.items:
		if !ok {
			return event.Event{}, ErrClosed
		}
		return item.ev, item.err
	case <-ctx.Done():
		return event.Event{}, ctx.Err()
	}
}

func (p *prefetchStream) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done
		p.closeErr = p.inner.Close()
	})
	return p.closeErr
}
