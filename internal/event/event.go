// Package event defines the operations observed on the chain stream.
package event

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the operation type of an event.
type Kind string

const (
	KindComment Kind = "comment"
	KindVote    Kind = "vote"
)

// Event is a single operation taken from the stream.
type Event struct {
	Kind          Kind      `json:"kind"`
	Position      uint64    `json:"position"`
	Block         uint32    `json:"block"`
	Actor         string    `json:"actor"`          // Account that issued the operation
	SubjectAuthor string    `json:"subject_author"` // Account that would receive the gift
	SubjectID     string    `json:"subject_id"`     // @author/permlink the agent replies to
	ParentAuthor  string    `json:"parent_author"`  // Comment only; empty for root posts
	Body          string    `json:"body,omitempty"`
	VoteWeight    int64     `json:"vote_weight,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Position packs a block number and the index of an operation inside that
// block into one totally ordered value.
func Position(block uint32, index uint16) uint64 {
	return uint64(block)<<16 | uint64(index)
}

// SplitPosition is the inverse of Position.
func SplitPosition(pos uint64) (block uint32, index uint16) {
	return uint32(pos >> 16), uint16(pos & 0xffff)
}

// Permalink formats the identifier used to address a post or comment.
func Permalink(author, permlink string) string {
	return fmt.Sprintf("@%s/%s", author, permlink)
}

// ParsePermalink splits "@author/permlink" into its parts.
func ParsePermalink(id string) (author, permlink string, err error) {
	trimmed := strings.TrimPrefix(id, "@")
	author, permlink, ok := strings.Cut(trimmed, "/")
	if !ok || author == "" || permlink == "" {
		return "", "", fmt.Errorf("invalid permalink %q", id)
	}
	return author, permlink, nil
}

// HasKind reports whether k is contained in kinds.
func HasKind(kinds []Kind, k Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
