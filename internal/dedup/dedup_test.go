package dedup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamir/giftbot/internal/hive"
)

type staticLister map[string][]hive.Reply

func (s staticLister) GetReplies(ctx context.Context, subjectID string) ([]hive.Reply, error) {
	replies, ok := s[subjectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hive.ErrNotFound, subjectID)
	}
	return replies, nil
}

func TestHasReplied(t *testing.T) {
	lister := staticLister{
		"@bob/answered": {{Author: "alice"}, {Author: "GiftBot"}},
		"@bob/fresh":    {{Author: "alice"}},
		"@bob/empty":    nil,
	}
	d := New(lister, "giftbot")
	ctx := context.Background()

	tests := []struct {
		subject string
		want    bool
	}{
		{"@bob/answered", true},
		{"@bob/fresh", false},
		{"@bob/empty", false},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			got, err := d.HasReplied(ctx, tt.subject)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasRepliedMissingSubject(t *testing.T) {
	d := New(staticLister{}, "giftbot")
	_, err := d.HasReplied(context.Background(), "@bob/deleted")
	assert.True(t, errors.Is(err, hive.ErrNotFound))
}
