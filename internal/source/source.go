// Package source delivers chain events to the dispatch engine in order.
package source

import (
	"context"
	"errors"

	"github.com/kamir/giftbot/internal/event"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("source: stream closed")

// Source opens ordered event streams.
type Source interface {
	// Open starts a stream at the first event whose position is >= from. A
	// zero from lets the source pick its own starting point. Only events of
	// the given kinds are delivered.
	Open(ctx context.Context, kinds []event.Kind, from uint64) (Stream, error)
}

// Stream yields events in strictly increasing position order. A finite stream
// returns io.EOF once exhausted.
type Stream interface {
	Next(ctx context.Context) (event.Event, error)
	Close() error
}
