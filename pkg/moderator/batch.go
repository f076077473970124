package moderator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zpam/comment-moderator/pkg/model"
)

// BatchReport summarizes a ClassifyPending run
type BatchReport struct {
	Total    int                 `json:"total"`
	ByClass  map[model.Class]int `json:"by_class"`
	Failures map[int64]string    `json:"failures,omitempty"`
	Duration time.Duration       `json:"duration"`
}

// RetrainReport summarizes a Retrain run
type RetrainReport struct {
	Spam     int           `json:"spam"`
	Ham      int           `json:"ham"`
	Duration time.Duration `json:"duration"`
}

// ProgressFunc is called after each trained comment
type ProgressFunc func(done, total int)

// ClassifyPending runs automatic classification over every top-level comment
// that has no class yet or is unsure. Comments that vanish or carry bad data
// are recorded in the report and skipped; any other error stops the run.
func (m *Moderator) ClassifyPending(ctx context.Context) (*BatchReport, error) {
	start := time.Now()
	report := &BatchReport{
		ByClass:  make(map[model.Class]int),
		Failures: make(map[int64]string),
	}

	ids, err := m.repo.PendingCommentIDs(ctx)
	if err != nil {
		return report, err
	}
	m.logger.Info("classifying pending comments", zap.Int("count", len(ids)))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		stop := m.profile.Start("classify")
		rec, err := m.ClassifyComment(ctx, id, model.ClassNone)
		stop()
		switch {
		case errors.Is(err, model.ErrCommentNotFound), errors.Is(err, model.ErrInvalidClassification):
			m.logger.Warn("skipping comment", zap.Int64("comment_id", id), zap.Error(err))
			report.Failures[id] = err.Error()
			continue
		case err != nil:
			report.Duration = time.Since(start)
			return report, fmt.Errorf("classification of comment %d failed: %w", id, err)
		}

		report.Total++
		report.ByClass[rec.Class]++
	}

	report.Duration = time.Since(start)
	m.logger.Info("pending comments classified",
		zap.Int("total", report.Total),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// Retrain wipes the classifier and every classification, then trains on up
// to sampleCount removed comments as spam and sampleCount kept comments as
// ham. Classification rows for the samples are inserted directly so nothing
// is trained twice.
func (m *Moderator) Retrain(ctx context.Context, sampleCount int, progress ProgressFunc) (*RetrainReport, error) {
	if sampleCount <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", sampleCount)
	}
	start := time.Now()

	if err := m.classifier.Clear(ctx); err != nil {
		return nil, err
	}
	if err := m.repo.DeleteClassifications(ctx); err != nil {
		return nil, err
	}

	spam, err := m.repo.SampleComments(ctx, true, sampleCount)
	if err != nil {
		return nil, err
	}
	ham, err := m.repo.SampleComments(ctx, false, sampleCount)
	if err != nil {
		return nil, err
	}

	total := len(spam) + len(ham)
	recs := make([]model.ClassifiedComment, 0, total)
	done := 0

	train := func(comments []model.Comment, isSpam bool, class model.Class) error {
		for _, c := range comments {
			if err := m.classifier.Train(ctx, c.Text, isSpam); err != nil {
				return fmt.Errorf("training on comment %d failed: %w", c.ID, err)
			}
			recs = append(recs, model.ClassifiedComment{CommentID: c.ID, Class: class})
			done++
			if progress != nil {
				progress(done, total)
			}
		}
		return nil
	}

	if err := train(spam, true, model.ClassSpam); err != nil {
		return nil, err
	}
	if err := train(ham, false, model.ClassHam); err != nil {
		return nil, err
	}

	if err := m.classifier.Store(ctx); err != nil {
		return nil, err
	}
	if err := m.repo.InsertClassifications(ctx, recs); err != nil {
		return nil, err
	}

	report := &RetrainReport{Spam: len(spam), Ham: len(ham), Duration: time.Since(start)}
	m.logger.Info("classifier retrained",
		zap.Int("spam", report.Spam),
		zap.Int("ham", report.Ham),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
