package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zpam/comment-moderator/pkg/model"
)

type replyRow struct {
	ID            int64         `db:"id"`
	CommentID     int64         `db:"comment_id"`
	CannedReplyID sql.NullInt64 `db:"canned_reply_id"`
	ReplyID       int64         `db:"reply_comment_id"`

	Text        string `db:"reply_text"`
	IsRemoved   bool   `db:"reply_is_removed"`
	IsReply     bool   `db:"reply_is_reply"`
	SubmittedAt int64  `db:"reply_submitted_at"`
}

const selectReply = `
SELECT r.id, r.comment_id, r.canned_reply_id, r.reply_comment_id,
	c.text AS reply_text, c.is_removed AS reply_is_removed,
	c.is_reply AS reply_is_reply, c.submitted_at AS reply_submitted_at
FROM comment_replies r
JOIN comments c ON c.id = r.reply_comment_id
`

func (r replyRow) reply() model.CommentReply {
	rec := model.CommentReply{
		ID:        r.ID,
		CommentID: r.CommentID,
		Reply: commentRow{
			ID:          r.ReplyID,
			Text:        r.Text,
			IsRemoved:   r.IsRemoved,
			IsReply:     r.IsReply,
			SubmittedAt: r.SubmittedAt,
		}.comment(),
	}
	if r.CannedReplyID.Valid {
		id := r.CannedReplyID.Int64
		rec.CannedReplyID = &id
	}
	return rec
}

// CreateCannedReply stores a canned reply and fills in its ID
func (s *DB) CreateCannedReply(ctx context.Context, reply *model.CannedReply) error {
	if strings.TrimSpace(reply.Text) == "" {
		return model.ErrEmptyReply
	}
	row := s.db.QueryRowxContext(ctx, s.rebind(`INSERT INTO canned_replies (text) VALUES (?) RETURNING id`), reply.Text)
	if err := row.Scan(&reply.ID); err != nil {
		return fmt.Errorf("failed to create canned reply: %w", err)
	}
	return nil
}

// CannedReply loads a canned reply by ID
func (s *DB) CannedReply(ctx context.Context, id int64) (model.CannedReply, error) {
	var reply model.CannedReply
	err := s.db.GetContext(ctx, &reply, s.rebind(`SELECT id, text FROM canned_replies WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return reply, fmt.Errorf("%w: %d", model.ErrCannedReplyNotFound, id)
	}
	if err != nil {
		return reply, fmt.Errorf("failed to load canned reply %d: %w", id, err)
	}
	return reply, nil
}

// ListCannedReplies returns every canned reply in creation order
func (s *DB) ListCannedReplies(ctx context.Context) ([]model.CannedReply, error) {
	replies := []model.CannedReply{}
	if err := s.db.SelectContext(ctx, &replies, `SELECT id, text FROM canned_replies ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list canned replies: %w", err)
	}
	return replies, nil
}

// Reply returns the moderator reply posted on a comment
func (s *DB) Reply(ctx context.Context, commentID int64) (model.CommentReply, error) {
	return s.reply(ctx, s.db, commentID)
}

func (s *DB) reply(ctx context.Context, q sqlx.QueryerContext, commentID int64) (model.CommentReply, error) {
	var row replyRow
	err := sqlx.GetContext(ctx, q, &row, s.rebind(selectReply+`WHERE r.comment_id = ?`), commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CommentReply{}, fmt.Errorf("%w: comment %d", model.ErrReplyNotFound, commentID)
	}
	if err != nil {
		return model.CommentReply{}, fmt.Errorf("failed to load reply to comment %d: %w", commentID, err)
	}
	return row.reply(), nil
}

// SaveReply posts text as the moderator reply on a comment. The first call
// creates a reply comment submitted offset after the comment; later calls
// rewrite the text of that same reply comment. created reports whether the
// reply comment was inserted.
func (s *DB) SaveReply(ctx context.Context, commentID int64, text string, cannedReplyID *int64, offset time.Duration) (rec model.CommentReply, created bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return rec, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var submittedAt int64
	err = tx.GetContext(ctx, &submittedAt, s.rebind(`SELECT submitted_at FROM comments WHERE id = ?`), commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, false, fmt.Errorf("%w: %d", model.ErrCommentNotFound, commentID)
	}
	if err != nil {
		return rec, false, fmt.Errorf("failed to load comment %d: %w", commentID, err)
	}

	var canned sql.NullInt64
	if cannedReplyID != nil {
		canned = sql.NullInt64{Int64: *cannedReplyID, Valid: true}
	}

	var existing replyRow
	err = tx.GetContext(ctx, &existing, s.rebind(`
SELECT id, comment_id, canned_reply_id, reply_comment_id FROM comment_replies WHERE comment_id = ?
`), commentID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		var replyID int64
		err = tx.QueryRowxContext(ctx, s.rebind(`
INSERT INTO comments (text, is_removed, is_reply, submitted_at)
VALUES (?, ?, ?, ?)
RETURNING id
`), text, false, true, submittedAt+int64(offset/time.Second)).Scan(&replyID)
		if err != nil {
			return rec, false, fmt.Errorf("failed to create reply comment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`
INSERT INTO comment_replies (comment_id, reply_comment_id, canned_reply_id) VALUES (?, ?, ?)
`), commentID, replyID, canned); err != nil {
			return rec, false, fmt.Errorf("failed to link reply to comment %d: %w", commentID, err)
		}
		created = true
	case err != nil:
		return rec, false, fmt.Errorf("failed to load reply to comment %d: %w", commentID, err)
	default:
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE comments SET text = ? WHERE id = ?`), text, existing.ReplyID); err != nil {
			return rec, false, fmt.Errorf("failed to update reply comment %d: %w", existing.ReplyID, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE comment_replies SET canned_reply_id = ? WHERE id = ?`), canned, existing.ID); err != nil {
			return rec, false, fmt.Errorf("failed to update reply to comment %d: %w", commentID, err)
		}
	}

	rec, err = s.reply(ctx, tx, commentID)
	if err != nil {
		return rec, false, err
	}
	if err := tx.Commit(); err != nil {
		return model.CommentReply{}, false, err
	}
	return rec, created, nil
}

// DeleteReply removes the moderator reply on a comment together with its
// reply comment
func (s *DB) DeleteReply(ctx context.Context, commentID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var existing replyRow
	err = tx.GetContext(ctx, &existing, s.rebind(`
SELECT id, comment_id, canned_reply_id, reply_comment_id FROM comment_replies WHERE comment_id = ?
`), commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: comment %d", model.ErrReplyNotFound, commentID)
	}
	if err != nil {
		return fmt.Errorf("failed to load reply to comment %d: %w", commentID, err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM comment_replies WHERE id = ?`), existing.ID); err != nil {
		return fmt.Errorf("failed to delete reply to comment %d: %w", commentID, err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM comments WHERE id = ?`), existing.ReplyID); err != nil {
		return fmt.Errorf("failed to delete reply comment %d: %w", existing.ReplyID, err)
	}
	return tx.Commit()
}
