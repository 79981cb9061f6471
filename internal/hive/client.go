// Package hive talks to a Hive API node and to the broadcaster that signs
// operations on the bot's behalf.
package hive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kamir/giftbot/internal/event"
	"github.com/kamir/giftbot/internal/jsonrpc"
)

// ErrNotFound is returned when a post or comment does not exist.
var ErrNotFound = errors.New("hive: content not found")

// AppName is written into the json_metadata of every reply.
const AppName = "giftbot/1.0"

// Client reads from an API node and writes through a Broadcaster.
type Client struct {
	rpc         *jsonrpc.Client
	broadcaster *Broadcaster
	now         func() time.Time
}

// NewClient creates a client. broadcaster may be nil for read-only use.
func NewClient(apiNode string, timeout time.Duration, broadcaster *Broadcaster) *Client {
	return &Client{
		rpc:         jsonrpc.New(apiNode, timeout),
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// GetDynamicGlobalProperties returns the current chain head information.
func (c *Client) GetDynamicGlobalProperties(ctx context.Context) (GlobalProperties, error) {
	var props GlobalProperties
	err := c.rpc.Call(ctx, "condenser_api.get_dynamic_global_properties", []any{}, &props)
	return props, err
}

// GetOpsInBlock returns all operations of block in chain order.
func (c *Client) GetOpsInBlock(ctx context.Context, block uint32) ([]AppliedOp, error) {
	var ops []AppliedOp
	if err := c.rpc.Call(ctx, "condenser_api.get_ops_in_block", []any{block, false}, &ops); err != nil {
		return nil, fmt.Errorf("get ops in block %d: %w", block, err)
	}
	return ops, nil
}

// GetContent returns a post or comment, or ErrNotFound.
func (c *Client) GetContent(ctx context.Context, author, permlink string) (Content, error) {
	var content Content
	if err := c.rpc.Call(ctx, "condenser_api.get_content", []any{author, permlink}, &content); err != nil {
		return Content{}, err
	}
	if content.Author == "" {
		return Content{}, fmt.Errorf("%w: @%s/%s", ErrNotFound, author, permlink)
	}
	return content, nil
}

// GetReplies lists the direct replies to subjectID ("@author/permlink").
func (c *Client) GetReplies(ctx context.Context, subjectID string) ([]Reply, error) {
	author, permlink, err := event.ParsePermalink(subjectID)
	if err != nil {
		// No such post can exist, so the subject is as missing as a deleted one.
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if _, err := c.GetContent(ctx, author, permlink); err != nil {
		return nil, err
	}
	var replies []Reply
	if err := c.rpc.Call(ctx, "condenser_api.get_content_replies", []any{author, permlink}, &replies); err != nil {
		return nil, fmt.Errorf("get replies of %s: %w", subjectID, err)
	}
	return replies, nil
}

// PostReply publishes body as a reply by author to subjectID.
func (c *Client) PostReply(ctx context.Context, subjectID, author, body string) error {
	if c.broadcaster == nil {
		return errors.New("hive: no broadcaster configured")
	}
	parentAuthor, parentPermlink, err := event.ParsePermalink(subjectID)
	if err != nil {
		return err
	}
	op, err := NewOperation("comment", CommentOp{
		ParentAuthor:   parentAuthor,
		ParentPermlink: parentPermlink,
		Author:         author,
		Permlink:       ReplyPermlink(parentPermlink, c.now()),
		Body:           body,
		JSONMetadata:   fmt.Sprintf(`{"app":%q}`, AppName),
	})
	if err != nil {
		return err
	}
	txID, err := c.broadcaster.Broadcast(ctx, author, op)
	if err != nil {
		return fmt.Errorf("post reply to %s: %w", subjectID, err)
	}
	slog.Info("Reply broadcast", "subject", subjectID, "tx_id", txID)
	return nil
}

var permlinkInvalid = regexp.MustCompile(`[^a-z0-9-]+`)

// ReplyPermlink derives a unique permlink for a reply to parentPermlink.
func ReplyPermlink(parentPermlink string, now time.Time) string {
	now = now.UTC()
	stamp := fmt.Sprintf("%st%s%03dz", now.Format("20060102"), now.Format("150405"), now.Nanosecond()/int(time.Millisecond))
	base := permlinkInvalid.ReplaceAllString(strings.ToLower(parentPermlink), "")
	const maxLen = 255
	if room := maxLen - len("re--") - len(stamp); len(base) > room {
		base = base[:room]
	}
	return "re-" + base + "-" + stamp
}
