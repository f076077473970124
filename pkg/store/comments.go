package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zpam/comment-moderator/pkg/model"
)

type commentRow struct {
	ID          int64          `db:"id"`
	Text        string         `db:"text"`
	IsRemoved   bool           `db:"is_removed"`
	IsReply     bool           `db:"is_reply"`
	SubmittedAt int64          `db:"submitted_at"`
	Class       sql.NullString `db:"cls"`
}

func (r commentRow) comment() model.Comment {
	return model.Comment{
		ID:          r.ID,
		Text:        r.Text,
		IsRemoved:   r.IsRemoved,
		IsReply:     r.IsReply,
		SubmittedAt: time.Unix(r.SubmittedAt, 0).UTC(),
	}
}

func (r commentRow) moderated() model.ModeratedComment {
	return model.ModeratedComment{Comment: r.comment(), Class: model.Class(r.Class.String)}
}

const selectModerated = `
SELECT c.id, c.text, c.is_removed, c.is_reply, c.submitted_at, cc.cls
FROM comments c
LEFT JOIN classified_comments cc ON cc.comment_id = c.id
`

// CreateComment stores a new comment and fills in its ID
func (s *DB) CreateComment(ctx context.Context, comment *model.Comment) error {
	if comment.SubmittedAt.IsZero() {
		comment.SubmittedAt = time.Now().UTC()
	}
	row := s.db.QueryRowxContext(ctx, s.rebind(`
INSERT INTO comments (text, is_removed, is_reply, submitted_at)
VALUES (?, ?, ?, ?)
RETURNING id
`), comment.Text, comment.IsRemoved, comment.IsReply, comment.SubmittedAt.Unix())
	if err := row.Scan(&comment.ID); err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// Comment loads a comment by ID
func (s *DB) Comment(ctx context.Context, id int64) (model.Comment, error) {
	var row commentRow
	err := s.db.GetContext(ctx, &row, s.rebind(`
SELECT id, text, is_removed, is_reply, submitted_at
FROM comments
WHERE id = ?
`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Comment{}, fmt.Errorf("%w: %d", model.ErrCommentNotFound, id)
	}
	if err != nil {
		return model.Comment{}, fmt.Errorf("failed to load comment %d: %w", id, err)
	}
	return row.comment(), nil
}

// ModeratedComment loads a comment together with its current class
func (s *DB) ModeratedComment(ctx context.Context, id int64) (model.ModeratedComment, error) {
	var row commentRow
	err := s.db.GetContext(ctx, &row, s.rebind(selectModerated+`WHERE c.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ModeratedComment{}, fmt.Errorf("%w: %d", model.ErrCommentNotFound, id)
	}
	if err != nil {
		return model.ModeratedComment{}, fmt.Errorf("failed to load comment %d: %w", id, err)
	}
	return row.moderated(), nil
}

// ListClassified returns comments carrying class, newest first.
// ClassNone lists every comment that has a classification record.
func (s *DB) ListClassified(ctx context.Context, class model.Class, limit int) ([]model.ModeratedComment, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var rows []commentRow
	var err error
	if class == model.ClassNone {
		err = s.db.SelectContext(ctx, &rows, s.rebind(selectModerated+`
WHERE cc.id IS NOT NULL
ORDER BY c.submitted_at DESC, c.id DESC
LIMIT ?
`), limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, s.rebind(selectModerated+`
WHERE cc.cls = ?
ORDER BY c.submitted_at DESC, c.id DESC
LIMIT ?
`), string(class), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s comments: %w", class, err)
	}

	out := make([]model.ModeratedComment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.moderated())
	}
	return out, nil
}

// PendingCommentIDs returns top-level comments that have no classification
// yet or are currently unsure, oldest first.
func (s *DB) PendingCommentIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, s.rebind(`
SELECT c.id
FROM comments c
LEFT JOIN classified_comments cc ON cc.comment_id = c.id
WHERE c.is_reply = ? AND (cc.id IS NULL OR cc.cls = ? OR cc.cls = ?)
ORDER BY c.id
`), false, string(model.ClassNone), string(model.ClassUnsure))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending comments: %w", err)
	}
	return ids, nil
}

// SampleComments returns up to limit random top-level comments with the
// given removed flag.
func (s *DB) SampleComments(ctx context.Context, removed bool, limit int) ([]model.Comment, error) {
	var rows []commentRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
SELECT id, text, is_removed, is_reply, submitted_at
FROM comments
WHERE is_removed = ? AND is_reply = ?
ORDER BY RANDOM()
LIMIT ?
`), removed, false, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample comments: %w", err)
	}

	out := make([]model.Comment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.comment())
	}
	return out, nil
}
