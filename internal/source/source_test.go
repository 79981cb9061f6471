package source

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamir/giftbot/internal/event"
)

var commentsOnly = []event.Kind{event.KindComment}

func drain(t *testing.T, s Stream) []uint64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got []uint64
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return got
		}
		require.NoError(t, err)
		got = append(got, ev.Position)
	}
}

func TestChannelSourceReplaysFromPosition(t *testing.T) {
	src := NewChannelSource()
	require.NoError(t, src.Send(event.Event{Kind: event.KindComment, Position: 1}))
	require.NoError(t, src.Send(event.Event{Kind: event.KindVote, Position: 2}))
	require.NoError(t, src.Send(event.Event{Kind: event.KindComment, Position: 3}))
	src.CloseInput()

	s, err := src.Open(context.Background(), commentsOnly, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, drain(t, s))

	s, err = src.Open(context.Background(), []event.Kind{event.KindComment, event.KindVote}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, drain(t, s))
	assert.Equal(t, 2, src.Opens())
}

func TestChannelSourceRejectsOutOfOrder(t *testing.T) {
	src := NewChannelSource()
	require.NoError(t, src.Send(event.Event{Kind: event.KindComment, Position: 5}))
	assert.Error(t, src.Send(event.Event{Kind: event.KindComment, Position: 5}))

	src.CloseInput()
	assert.ErrorIs(t, src.Send(event.Event{Kind: event.KindComment, Position: 6}), ErrClosed)
}

func TestChannelStreamWaitsForInput(t *testing.T) {
	src := NewChannelSource()
	s, err := src.Open(context.Background(), commentsOnly, 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = src.Send(event.Event{Kind: event.KindComment, Position: 9})
	}()
	ev, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(9), ev.Position)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, s.Close())
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPrefetchPreservesOrderAndEOF(t *testing.T) {
	src := NewChannelSource()
	for i := uint64(1); i <= 20; i++ {
		require.NoError(t, src.Send(event.Event{Kind: event.KindComment, Position: i}))
	}
	src.CloseInput()

	inner, err := src.Open(context.Background(), commentsOnly, 0)
	require.NoError(t, err)
	s := Prefetch(inner, 4)
	defer s.Close()

	got := drain(t, s)
	require.Len(t, got, 20)
	for i, pos := range got {
		assert.Equal(t, uint64(i+1), pos)
	}
}

func TestPrefetchCloseStopsReadAhead(t *testing.T) {
	src := NewChannelSource()
	inner, err := src.Open(context.Background(), commentsOnly, 0)
	require.NoError(t, err)

	s := Prefetch(inner, 2)
	done := make(chan error, 1)
	go func() { done <- s.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an idle stream")
	}
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPrefetchDisabled(t *testing.T) {
	src := NewChannelSource()
	inner, err := src.Open(context.Background(), commentsOnly, 0)
	require.NoError(t, err)
	assert.Same(t, inner, Prefetch(inner, 0))
}

func TestDecodeKafkaEvent(t *testing.T) {
	ev, err := DecodeKafkaEvent([]byte(`{"kind":"comment","position":1,"actor":"alice","subject_id":"@bob/post","body":"!PIZZA"}`), 77)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), ev.Position, "offset wins over the payload")
	assert.Equal(t, "alice", ev.Actor)
	assert.Equal(t, event.KindComment, ev.Kind)

	_, err = DecodeKafkaEvent([]byte(`{"actor":"alice"}`), 1)
	assert.Error(t, err)
	_, err = DecodeKafkaEvent([]byte(`not json`), 1)
	assert.Error(t, err)
}
