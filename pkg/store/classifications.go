package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zpam/comment-moderator/pkg/model"
)

// Classification returns the classification record of a comment, if any
func (s *DB) Classification(ctx context.Context, commentID int64) (model.ClassifiedComment, bool, error) {
	var rec model.ClassifiedComment
	err := s.db.GetContext(ctx, &rec, s.rebind(`
SELECT id, comment_id, cls FROM classified_comments WHERE comment_id = ?
`), commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ClassifiedComment{}, false, nil
	}
	if err != nil {
		return model.ClassifiedComment{}, false, fmt.Errorf("failed to load classification of comment %d: %w", commentID, err)
	}
	return rec, true, nil
}

// UpsertClassification returns the classification record of a comment,
// creating it with ClassNone when absent. created reports whether this call
// inserted the row.
func (s *DB) UpsertClassification(ctx context.Context, commentID int64) (rec model.ClassifiedComment, created bool, err error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO classified_comments (comment_id, cls) VALUES (?, ?)
ON CONFLICT (comment_id) DO NOTHING
`), commentID, string(model.ClassNone))
	if err != nil {
		return rec, false, fmt.Errorf("failed to create classification of comment %d: %w", commentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return rec, false, err
	}

	rec, found, err := s.Classification(ctx, commentID)
	if err != nil {
		return rec, false, err
	}
	if !found {
		return rec, false, fmt.Errorf("classification of comment %d vanished after insert", commentID)
	}
	return rec, n == 1, nil
}

// ApplyClassification sets the class of a comment and its removed flag in
// one transaction, so the flag always matches the class.
func (s *DB) ApplyClassification(ctx context.Context, commentID int64, class model.Class) (model.ClassifiedComment, error) {
	var rec model.ClassifiedComment

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return rec, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE comments SET is_removed = ? WHERE id = ?`), class.Removed(), commentID)
	if err != nil {
		return rec, fmt.Errorf("failed to update comment %d: %w", commentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return rec, fmt.Errorf("%w: %d", model.ErrCommentNotFound, commentID)
	}

	err = tx.QueryRowxContext(ctx, s.rebind(`
INSERT INTO classified_comments (comment_id, cls) VALUES (?, ?)
ON CONFLICT (comment_id) DO UPDATE SET cls = excluded.cls
RETURNING id, comment_id, cls
`), commentID, string(class)).StructScan(&rec)
	if err != nil {
		return rec, fmt.Errorf("failed to store classification of comment %d: %w", commentID, err)
	}

	if err := tx.Commit(); err != nil {
		return model.ClassifiedComment{}, err
	}
	return rec, nil
}

// DeleteClassifications removes every classification record
func (s *DB) DeleteClassifications(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM classified_comments`); err != nil {
		return fmt.Errorf("failed to delete classifications: %w", err)
	}
	return nil
}

// InsertClassifications bulk inserts records without touching comments.
// Used by retraining, which already knows the class of each sample.
func (s *DB) InsertClassifications(ctx context.Context, recs []model.ClassifiedComment) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, s.rebind(`
INSERT INTO classified_comments (comment_id, cls) VALUES (?, ?)
ON CONFLICT (comment_id) DO UPDATE SET cls = excluded.cls
`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.CommentID, string(rec.Class)); err != nil {
			return fmt.Errorf("failed to insert classification of comment %d: %w", rec.CommentID, err)
		}
	}
	return tx.Commit()
}

// ClassCounts returns the number of classification records per class
func (s *DB) ClassCounts(ctx context.Context) (map[model.Class]int, error) {
	var rows []struct {
		Class string `db:"cls"`
		Count int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT cls, COUNT(*) AS n FROM classified_comments GROUP BY cls`); err != nil {
		return nil, fmt.Errorf("failed to count classifications: %w", err)
	}
	counts := make(map[model.Class]int, len(rows))
	for _, r := range rows {
		counts[model.Class(r.Class)] = r.Count
	}
	return counts, nil
}
