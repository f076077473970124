package moderator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zpam/comment-moderator/pkg/model"
)

// ReplyRequest is the content of a moderator reply. A canned reply wins
// over Text when both are given.
type ReplyRequest struct {
	CannedReplyID *int64
	Text          string
}

// Reply posts a moderator reply on a comment, or rewrites the one already
// posted. The reply is stored as a reply comment, so it is never classified
// and votes on it never report anything. created reports whether the reply
// comment is new.
func (m *Moderator) Reply(ctx context.Context, commentID int64, req ReplyRequest) (rec model.CommentReply, created bool, err error) {
	text := strings.TrimSpace(req.Text)
	if req.CannedReplyID != nil {
		canned, err := m.repo.CannedReply(ctx, *req.CannedReplyID)
		if err != nil {
			return rec, false, err
		}
		text = canned.Text
	}
	if text == "" {
		return rec, false, model.ErrEmptyReply
	}

	defer m.lock(commentID)()

	rec, created, err = m.repo.SaveReply(ctx, commentID, text, req.CannedReplyID, m.replyOffset())
	if err != nil {
		return rec, false, fmt.Errorf("failed to reply to comment %d: %w", commentID, err)
	}

	m.logger.Info("moderator replied",
		zap.Int64("comment_id", commentID),
		zap.Int64("reply_comment_id", rec.Reply.ID),
		zap.Bool("created", created),
	)
	return rec, created, nil
}

// DeleteReply removes the moderator reply on a comment
func (m *Moderator) DeleteReply(ctx context.Context, commentID int64) error {
	defer m.lock(commentID)()

	if err := m.repo.DeleteReply(ctx, commentID); err != nil {
		return err
	}
	m.logger.Info("moderator reply deleted", zap.Int64("comment_id", commentID))
	return nil
}

func (m *Moderator) replyOffset() time.Duration {
	if m.config.ReplyBeforeComment {
		return -time.Second
	}
	return time.Second
}
