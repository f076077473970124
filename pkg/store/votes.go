package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zpam/comment-moderator/pkg/model"
)

// RecordVote stores a vote; a voter changing their mind replaces the
// previous vote on the same comment.
func (s *DB) RecordVote(ctx context.Context, vote model.Vote) error {
	if err := vote.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO votes (comment_id, token, vote, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (comment_id, token) DO UPDATE SET vote = excluded.vote
`), vote.CommentID, vote.Token, vote.Value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record vote on comment %d: %w", vote.CommentID, err)
	}
	return nil
}

// CountDownVotes returns the number of -1 votes on a comment
func (s *DB) CountDownVotes(ctx context.Context, commentID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.rebind(`SELECT COUNT(*) FROM votes WHERE comment_id = ? AND vote = -1`), commentID)
	if err != nil {
		return 0, fmt.Errorf("failed to count down votes on comment %d: %w", commentID, err)
	}
	return n, nil
}
