package hive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamir/giftbot/internal/event"
)

// fakeNode answers the condenser and broadcaster methods the bot uses.
type fakeNode struct {
	mu        sync.Mutex
	lib       uint32
	blocks    map[uint32]string
	contents  map[string]string
	replies   map[string]string
	broadcast []json.RawMessage
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		blocks:   map[uint32]string{},
		contents: map[string]string{},
		replies:  map[string]string{},
	}
}

func (f *fakeNode) serve(t *testing.T) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		defer f.mu.Unlock()

		result := "null"
		switch req.Method {
		case "condenser_api.get_dynamic_global_properties":
			result = fmt.Sprintf(`{"head_block_number":%d,"last_irreversible_block_num":%d,"time":"2024-05-01T12:00:00"}`, f.lib+20, f.lib)
		case "condenser_api.get_ops_in_block":
			var params []json.RawMessage
			assert.NoError(t, json.Unmarshal(req.Params, &params))
			var block uint32
			assert.NoError(t, json.Unmarshal(params[0], &block))
			result = "[]"
			if ops, ok := f.blocks[block]; ok {
				result = ops
			}
		case "condenser_api.get_content":
			var params []string
			assert.NoError(t, json.Unmarshal(req.Params, &params))
			result = `{"author":"","permlink":""}`
			if c, ok := f.contents[params[0]+"/"+params[1]]; ok {
				result = c
			}
		case "condenser_api.get_content_replies":
			var params []string
			assert.NoError(t, json.Unmarshal(req.Params, &params))
			result = "[]"
			if rs, ok := f.replies[params[0]+"/"+params[1]]; ok {
				result = rs
			}
		case "broadcast_operations":
			assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
			f.broadcast = append(f.broadcast, req.Params)
			result = `{"id":"abc123"}`
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, "unknown method")
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","result":%s,"id":1}`, result)
	}))
	t.Cleanup(ts.Close)
	return ts
}

const blockOps = `[
 {"trx_id":"t1","block":100,"trx_in_block":0,"op_in_trx":0,"virtual_op":0,"timestamp":"2024-05-01T10:00:00",
  "op":["comment",{"parent_author":"bob","parent_permlink":"post","author":"alice","permlink":"re-1","title":"","body":"!PIZZA thanks","json_metadata":"{}"}]},
 {"trx_id":"t2","block":100,"trx_in_block":1,"op_in_trx":0,"virtual_op":0,"timestamp":"2024-05-01T10:00:00",
  "op":["transfer",{"from":"a","to":"b","amount":"1.000 HIVE","memo":""}]},
 {"trx_id":"t3","block":100,"trx_in_block":2,"op_in_trx":0,"virtual_op":0,"timestamp":"2024-05-01T10:00:00",
  "op":["vote",{"voter":"curator","author":"carol","permlink":"daily","weight":10000}]}
]`

func TestEventsFromOps(t *testing.T) {
	var ops []AppliedOp
	require.NoError(t, json.Unmarshal([]byte(blockOps), &ops))

	events := EventsFromOps(100, ops)
	require.Len(t, events, 2)

	c := events[0]
	assert.Equal(t, event.KindComment, c.Kind)
	assert.Equal(t, event.Position(100, 0), c.Position)
	assert.Equal(t, "alice", c.Actor)
	assert.Equal(t, "bob", c.SubjectAuthor)
	assert.Equal(t, "@alice/re-1", c.SubjectID)
	assert.Equal(t, "!PIZZA thanks", c.Body)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), c.Timestamp)

	v := events[1]
	assert.Equal(t, event.KindVote, v.Kind)
	assert.Equal(t, event.Position(100, 2), v.Position)
	assert.Equal(t, "curator", v.Actor)
	assert.Equal(t, "carol", v.SubjectAuthor)
	assert.Equal(t, "@carol/daily", v.SubjectID)
	assert.Equal(t, int64(10000), v.VoteWeight)
}

func TestOperationJSON(t *testing.T) {
	op, err := NewOperation("vote", VoteOp{Voter: "a", Author: "b", Permlink: "p", Weight: -100})
	require.NoError(t, err)

	data, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t, `["vote",{"voter":"a","author":"b","permlink":"p","weight":-100}]`, string(data))

	var back Operation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "vote", back.Name)

	assert.Error(t, json.Unmarshal([]byte(`["vote"]`), &back))
}

func TestBlockSourceStreamsFromPosition(t *testing.T) {
	node := newFakeNode()
	node.lib = 101
	node.blocks[100] = blockOps
	node.blocks[101] = `[{"trx_id":"t4","block":101,"trx_in_block":0,"op_in_trx":0,"virtual_op":0,"timestamp":"2024-05-01T10:00:03",
  "op":["comment",{"parent_author":"dave","parent_permlink":"x","author":"erin","permlink":"y","title":"","body":"hi","json_metadata":"{}"}]}]`
	ts := node.serve(t)

	src := NewBlockSource(NewClient(ts.URL, time.Second, nil), 0, 10*time.Millisecond, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Resume just after the first comment of block 100; only comments wanted.
	stream, err := src.Open(ctx, []event.Kind{event.KindComment}, event.Position(100, 1))
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, event.Position(101, 0), ev.Position)
	assert.Equal(t, "erin", ev.Actor)
}

func TestBlockSourceStartsAtIrreversibleHead(t *testing.T) {
	node := newFakeNode()
	node.lib = 100
	node.blocks[100] = blockOps
	ts := node.serve(t)

	src := NewBlockSource(NewClient(ts.URL, time.Second, nil), 0, 10*time.Millisecond, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := src.Open(ctx, []event.Kind{event.KindComment, event.KindVote}, 0)
	require.NoError(t, err)
	defer stream.Close()

	first, err := stream.Next(ctx)
	require.NoError(t, err)
	second, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, event.KindComment, first.Kind)
	assert.Equal(t, event.KindVote, second.Kind)

	// Block 101 is not irreversible yet, so the stream waits.
	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	_, err = stream.Next(short)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGetRepliesAndNotFound(t *testing.T) {
	node := newFakeNode()
	node.contents["bob/post"] = `{"author":"bob","permlink":"post","parent_author":"","body":"x"}`
	node.replies["bob/post"] = `[{"author":"giftbot","permlink":"re-post"},{"author":"alice","permlink":"re-2"}]`
	ts := node.serve(t)

	client := NewClient(ts.URL, time.Second, nil)
	ctx := context.Background()

	replies, err := client.GetReplies(ctx, "@bob/post")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, "giftbot", replies[0].Author)

	_, err = client.GetReplies(ctx, "@bob/missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	for _, id := range []string{"garbage", "@bob/", "@/post", ""} {
		_, err = client.GetReplies(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, "subject %q", id)
	}
}

func TestPostReplyBroadcastsComment(t *testing.T) {
	node := newFakeNode()
	ts := node.serve(t)

	client := NewClient(ts.URL, time.Second, NewBroadcaster(ts.URL, "s3cret", time.Second))
	client.now = func() time.Time { return time.Date(2024, 5, 1, 10, 11, 12, 345e6, time.UTC) }

	require.NoError(t, client.PostReply(context.Background(), "@alice/re-1", "giftbot", "enjoy"))

	require.Len(t, node.broadcast, 1)
	var params struct {
		Account    string      `json:"account"`
		Operations []Operation `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(node.broadcast[0], &params))
	assert.Equal(t, "giftbot", params.Account)
	require.Len(t, params.Operations, 1)
	assert.Equal(t, "comment", params.Operations[0].Name)

	var c CommentOp
	require.NoError(t, json.Unmarshal(params.Operations[0].Payload, &c))
	assert.Equal(t, "alice", c.ParentAuthor)
	assert.Equal(t, "re-1", c.ParentPermlink)
	assert.Equal(t, "re-re-1-20240501t101112345z", c.Permlink)
	assert.Equal(t, "enjoy", c.Body)
	assert.True(t, strings.Contains(c.JSONMetadata, AppName))
}

func TestPostReplyWithoutBroadcaster(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second, nil)
	assert.Error(t, client.PostReply(context.Background(), "@a/b", "giftbot", "x"))
}

func TestReplyPermlink(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 6e6, time.UTC)
	assert.Equal(t, "re-mypost-20240102t030405006z", ReplyPermlink("My_Post", now))
	assert.Equal(t, "re-my-post-20240102t030405006z", ReplyPermlink("My-Post", now))
	assert.LessOrEqual(t, len(ReplyPermlink(strings.Repeat("a", 400), now)), 255)
}
