package moderator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/zpam/comment-moderator/pkg/abuse"
	"github.com/zpam/comment-moderator/pkg/learning"
	"github.com/zpam/comment-moderator/pkg/model"
	"github.com/zpam/comment-moderator/pkg/profiler"
)

// Repository is the persistence the moderator needs. *store.DB implements it.
type Repository interface {
	Comment(ctx context.Context, id int64) (model.Comment, error)
	UpsertClassification(ctx context.Context, commentID int64) (model.ClassifiedComment, bool, error)
	ApplyClassification(ctx context.Context, commentID int64, class model.Class) (model.ClassifiedComment, error)
	CountDownVotes(ctx context.Context, commentID int64) (int, error)
	ListClassified(ctx context.Context, class model.Class, limit int) ([]model.ModeratedComment, error)
	PendingCommentIDs(ctx context.Context) ([]int64, error)
	SampleComments(ctx context.Context, removed bool, limit int) ([]model.Comment, error)
	DeleteClassifications(ctx context.Context) error
	InsertClassifications(ctx context.Context, recs []model.ClassifiedComment) error

	CannedReply(ctx context.Context, id int64) (model.CannedReply, error)
	SaveReply(ctx context.Context, commentID int64, text string, cannedReplyID *int64, offset time.Duration) (model.CommentReply, bool, error)
	DeleteReply(ctx context.Context, commentID int64) error
}

// Classifier is the statistical model. *learning.Classifier implements it.
type Classifier interface {
	Score(ctx context.Context, text string) (float64, error)
	Train(ctx context.Context, text string, isSpam bool) error
	Learn(ctx context.Context, text string, isSpam bool) error
	Unlearn(ctx context.Context, text string, isSpam bool) error
	Store(ctx context.Context) error
	Clear(ctx context.Context) error
	Counts() learning.State
}

// Config holds the moderation thresholds
type Config struct {
	// Scores below HamCutoff are ham
	HamCutoff float64
	// Scores above SpamCutoff are spam
	SpamCutoff float64
	// Down votes needed to report a comment
	AbuseCutoff int
	// Classify new comments as they are created
	Realtime bool
	// Date moderator replies one second before the comment they answer
	// instead of one second after
	ReplyBeforeComment bool
}

// DefaultConfig returns the default thresholds
func DefaultConfig() Config {
	return Config{
		HamCutoff:   0.3,
		SpamCutoff:  0.7,
		AbuseCutoff: 3,
		Realtime:    true,
	}
}

// Moderator decides and records the class of comments
type Moderator struct {
	repo       Repository
	classifier Classifier
	config     Config
	gate       *abuse.Gate
	logger     *zap.Logger
	profile    *profiler.Profiler

	// one lock per comment ID currently being worked on
	locks *xsync.MapOf[int64, *commentLock]
}

type commentLock struct {
	mu sync.Mutex
	// holders and waiters; guarded by the map entry
	refs int
}

// New creates a moderator
func New(repo Repository, classifier Classifier, config Config, logger *zap.Logger) *Moderator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Moderator{
		repo:       repo,
		classifier: classifier,
		config:     config,
		gate:       abuse.NewGate(repo, config.AbuseCutoff),
		logger:     logger,
		locks:      xsync.NewMapOf[int64, *commentLock](),
	}
}

// SetProfiler records step timings into p. A nil p disables profiling.
func (m *Moderator) SetProfiler(p *profiler.Profiler) {
	m.profile = p
}

// lock serializes work on one comment. The entry is dropped once the last
// holder unlocks, so the map only holds comments in flight.
func (m *Moderator) lock(commentID int64) func() {
	l, _ := m.locks.Compute(commentID, func(l *commentLock, loaded bool) (*commentLock, bool) {
		if !loaded {
			l = &commentLock{}
		}
		l.refs++
		return l, false
	})
	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		m.locks.Compute(commentID, func(l *commentLock, loaded bool) (*commentLock, bool) {
			l.refs--
			return l, l.refs == 0
		})
	}
}

// ClassifyComment sets the class of a comment.
//
// An explicit class different from the current one is applied as is; spam
// and reported train the classifier as spam, ham trains it as ham. Passing
// the current class again changes nothing. With ClassNone the comment is
// reported if it has enough down votes, otherwise the classifier decides;
// neither of those automatic outcomes trains the classifier.
func (m *Moderator) ClassifyComment(ctx context.Context, commentID int64, explicit model.Class) (model.ClassifiedComment, error) {
	if !explicit.Valid() {
		return model.ClassifiedComment{}, fmt.Errorf("%w: %q", model.ErrInvalidClassification, string(explicit))
	}

	defer m.lock(commentID)()

	comment, err := m.repo.Comment(ctx, commentID)
	if err != nil {
		return model.ClassifiedComment{}, err
	}
	rec, _, err := m.repo.UpsertClassification(ctx, commentID)
	if err != nil {
		return model.ClassifiedComment{}, err
	}

	logger := m.logger.With(zap.Int64("comment_id", commentID), zap.Stringer("current", rec.Class))

	if explicit != model.ClassNone {
		if explicit == rec.Class {
			return rec, nil
		}

		isSpam, trains := trainsAs(explicit)
		if trains {
			if err := m.learn(ctx, comment.Text, isSpam); err != nil {
				return rec, err
			}
		}

		applied, err := m.repo.ApplyClassification(ctx, commentID, explicit)
		if err != nil {
			if !trains {
				return rec, err
			}
			// the class did not change, so the training must not count either
			if uerr := m.classifier.Unlearn(ctx, comment.Text, isSpam); uerr != nil {
				logger.Error("failed to take back training", zap.Error(uerr))
				return rec, errors.Join(err, uerr)
			}
			return rec, err
		}

		logger.Info("comment classified", zap.Stringer("class", explicit), zap.Bool("explicit", true))
		return applied, nil
	}

	class, err := m.decide(ctx, comment)
	if err != nil {
		return rec, err
	}

	logger.Info("comment classified", zap.Stringer("class", class), zap.Bool("explicit", false))
	return m.repo.ApplyClassification(ctx, commentID, class)
}

// trainsAs reports whether an explicit class trains the classifier, and as
// which kind
func trainsAs(class model.Class) (isSpam, trains bool) {
	switch class {
	case model.ClassSpam, model.ClassReported:
		return true, true
	case model.ClassHam:
		return false, true
	}
	return false, false
}

func (m *Moderator) learn(ctx context.Context, text string, isSpam bool) error {
	defer m.profile.Start("learn")()
	return m.classifier.Learn(ctx, text, isSpam)
}

// decide picks a class without training
func (m *Moderator) decide(ctx context.Context, comment model.Comment) (model.Class, error) {
	_, reached, err := m.gate.Reached(ctx, comment.ID)
	if err != nil {
		return model.ClassNone, err
	}
	if reached {
		return model.ClassReported, nil
	}

	stop := m.profile.Start("score")
	score, err := m.classifier.Score(ctx, comment.Text)
	stop()
	if errors.Is(err, learning.ErrInsufficientTrainingData) {
		return model.ClassUnsure, nil
	}
	if err != nil {
		return model.ClassNone, err
	}

	switch {
	case score < m.config.HamCutoff:
		return model.ClassHam, nil
	case score > m.config.SpamCutoff:
		return model.ClassSpam, nil
	default:
		return model.ClassUnsure, nil
	}
}

// FlagReported reports a comment once its down votes reach the abuse cutoff.
// It is safe to call repeatedly: reply comments, comments below the cutoff
// and comments already reported are left alone. changed reports whether the
// class was updated.
func (m *Moderator) FlagReported(ctx context.Context, commentID int64) (rec model.ClassifiedComment, changed bool, err error) {
	defer m.lock(commentID)()

	comment, err := m.repo.Comment(ctx, commentID)
	if err != nil {
		return rec, false, err
	}
	if comment.IsReply {
		return rec, false, nil
	}

	downVotes, reached, err := m.gate.Reached(ctx, commentID)
	if err != nil || !reached {
		return rec, false, err
	}

	rec, _, err = m.repo.UpsertClassification(ctx, commentID)
	if err != nil {
		return rec, false, err
	}
	if rec.Class == model.ClassReported {
		return rec, false, nil
	}

	m.logger.Info("comment reported by votes",
		zap.Int64("comment_id", commentID),
		zap.Int("down_votes", downVotes),
		zap.Stringer("previous", rec.Class),
	)
	rec, err = m.repo.ApplyClassification(ctx, commentID, model.ClassReported)
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// OnCommentCreated classifies a new top-level comment when realtime
// classification is enabled. ok is false when nothing was done.
func (m *Moderator) OnCommentCreated(ctx context.Context, comment model.Comment) (rec model.ClassifiedComment, ok bool, err error) {
	if !m.config.Realtime || comment.IsReply {
		return rec, false, nil
	}
	rec, err = m.ClassifyComment(ctx, comment.ID, model.ClassNone)
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// ListClassified returns comments of a class, newest first
func (m *Moderator) ListClassified(ctx context.Context, class model.Class, limit int) ([]model.ModeratedComment, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidClassification, string(class))
	}
	return m.repo.ListClassified(ctx, class, limit)
}

// Counts returns the trained document counts
func (m *Moderator) Counts() learning.State {
	return m.classifier.Counts()
}

// Config returns the active thresholds
func (m *Moderator) Config() Config {
	return m.config
}
