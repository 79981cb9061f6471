// Package dedup tells whether the bot already answered a post.
package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/kamir/giftbot/internal/hive"
)

// Lister lists the direct replies to a subject.
type Lister interface {
	GetReplies(ctx context.Context, subjectID string) ([]hive.Reply, error)
}

type Deduplicator struct {
	Lister  Lister
	Account string
}

func New(lister Lister, account string) *Deduplicator {
	return &Deduplicator{Lister: lister, Account: account}
}

// HasReplied reports whether Account authored a direct reply to subjectID.
// A subject that does not exist yields an error wrapping hive.ErrNotFound.
//
// Replies are read from the node and may lag a just-posted reply by a block
// or two.
func (d *Deduplicator) HasReplied(ctx context.Context, subjectID string) (bool, error) {
	replies, err := d.Lister.GetReplies(ctx, subjectID)
	if err != nil {
		return false, fmt.Errorf("check replies of %s: %w", subjectID, err)
	}
	for _, r := range replies {
		if strings.EqualFold(r.Author, d.Account) {
			return true, nil
		}
	}
	return false, nil
}
