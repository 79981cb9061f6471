package hive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kamir/giftbot/internal/event"
	"github.com/kamir/giftbot/internal/source"
)

var _ source.Source = (*BlockSource)(nil)

// BlockSource streams comment and vote operations from irreversible blocks.
type BlockSource struct {
	client       *Client
	startBlock   uint32
	pollInterval time.Duration
	prefetch     int
}

// NewBlockSource creates a block source. startBlock is used when no position
// is given; zero means the current last irreversible block.
func NewBlockSource(client *Client, startBlock uint32, pollInterval time.Duration, prefetch int) *BlockSource {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &BlockSource{
		client:       client,
		startBlock:   startBlock,
		pollInterval: pollInterval,
		prefetch:     prefetch,
	}
}

func (s *BlockSource) Open(ctx context.Context, kinds []event.Kind, from uint64) (source.Stream, error) {
	block, _ := event.SplitPosition(from)
	if from == 0 {
		block = s.startBlock
		if block == 0 {
			props, err := s.client.GetDynamicGlobalProperties(ctx)
			if err != nil {
				return nil, fmt.Errorf("block source: head: %w", err)
			}
			block = props.LastIrreversibleBlockNum
		}
	}
	slog.Info("Block source opened", "block", block, "from", from)

	stream := &blockStream{
		src:   s,
		kinds: kinds,
		from:  from,
		block: block,
	}
	return source.Prefetch(stream, s.prefetch), nil
}

type blockStream struct {
	src     *BlockSource
	kinds   []event.Kind
	from    uint64
	block   uint32
	lib     uint32
	pending []event.Event
}

func (b *blockStream) Next(ctx context.Context) (event.Event, error) {
	for {
		if len(b.pending) > 0 {
			ev := b.pending[0]
			b.pending = b.pending[1:]
			return ev, nil
		}

		if b.block > b.lib {
			props, err := b.src.client.GetDynamicGlobalProperties(ctx)
			if err != nil {
				return event.Event{}, fmt.Errorf("block source: head: %w", err)
			}
			b.lib = props.LastIrreversibleBlockNum
			if b.block > b.lib {
				select {
				case <-time.After(b.src.pollInterval):
					continue
				case <-ctx.Done():
					return event.Event{}, ctx.Err()
				}
			}
		}

		ops, err := b.src.client.GetOpsInBlock(ctx, b.block)
		if err != nil {
			return event.Event{}, err
		}
		for _, ev := range EventsFromOps(b.block, ops) {
			if ev.Position < b.from || !event.HasKind(b.kinds, ev.Kind) {
				continue
			}
			b.pending = append(b.pending, ev)
		}
		b.block++
	}
}

func (b *blockStream) Close() error { return nil }

// EventsFromOps maps the comment and vote operations of one block to events.
// The index of an operation within the block becomes the low half of its
// position.
func EventsFromOps(block uint32, ops []AppliedOp) []event.Event {
	var events []event.Event
	for i, op := range ops {
		if i > 0xffff {
			slog.Warn("Block has more operations than a position can address", "block", block)
			break
		}
		pos := event.Position(block, uint16(i))
		switch op.Op.Name {
		case "comment":
			var c CommentOp
			if err := json.Unmarshal(op.Op.Payload, &c); err != nil {
				slog.Warn("Skipping malformed comment op", "block", block, "index", i, "error", err)
				continue
			}
			events = append(events, event.Event{
				Kind:          event.KindComment,
				Position:      pos,
				Block:         block,
				Actor:         c.Author,
				SubjectAuthor: c.ParentAuthor,
				SubjectID:     event.Permalink(c.Author, c.Permlink),
				ParentAuthor:  c.ParentAuthor,
				Body:          c.Body,
				Timestamp:     op.Time(),
			})
		case "vote":
			var v VoteOp
			if err := json.Unmarshal(op.Op.Payload, &v); err != nil {
				slog.Warn("Skipping malformed vote op", "block", block, "index", i, "error", err)
				continue
			}
			events = append(events, event.Event{
				Kind:          event.KindVote,
				Position:      pos,
				Block:         block,
				Actor:         v.Voter,
				SubjectAuthor: v.Author,
				SubjectID:     event.Permalink(v.Author, v.Permlink),
				VoteWeight:    v.Weight,
				Timestamp:     op.Time(),
			})
		}
	}
	return events
}
