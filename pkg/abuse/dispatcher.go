package abuse

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zpam/comment-moderator/pkg/model"
)

// ErrQueueFull is returned by Publish when the event cannot be queued
var ErrQueueFull = errors.New("vote event queue is full")

// ErrDispatcherClosed is returned by Publish after Run has returned
var ErrDispatcherClosed = errors.New("vote event dispatcher is closed")

// VoteCounter counts down votes on a comment
type VoteCounter interface {
	CountDownVotes(ctx context.Context, commentID int64) (int, error)
}

// Flagger reports a comment once it has collected enough down votes.
// It must tolerate being called more than once for the same comment.
type Flagger interface {
	FlagReported(ctx context.Context, commentID int64) (model.ClassifiedComment, bool, error)
}

// VoteRecorded is published after a vote has been stored
type VoteRecorded struct {
	CommentID int64
	Token     string
	Vote      int
}

// Config holds dispatcher settings
type Config struct {
	QueueSize int
	Workers   int
}

// DefaultConfig returns default dispatcher settings
func DefaultConfig() Config {
	return Config{
		QueueSize: 1024,
		Workers:   2,
	}
}

// Dispatcher hands vote events to a Flagger off the request path
type Dispatcher struct {
	flagger Flagger
	config  Config
	logger  *zap.Logger

	events chan VoteRecorded

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher; call Run to start processing
func NewDispatcher(flagger Flagger, config Config, logger *zap.Logger) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		flagger: flagger,
		config:  config,
		logger:  logger,
		events:  make(chan VoteRecorded, config.QueueSize),
	}
}

// Publish queues an event without waiting for a worker.
// Up votes cannot report anything and are dropped.
func (d *Dispatcher) Publish(event VoteRecorded) error {
	if event.Vote >= 0 {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.events <- event:
		return nil
	default:
		return fmt.Errorf("%w: comment %d", ErrQueueFull, event.CommentID)
	}
}

// Run processes events until ctx is done, then drains what is still queued
// and returns. It must be called once.
func (d *Dispatcher) Run(ctx context.Context) error {
	g := new(errgroup.Group)
	for i := 0; i < d.config.Workers; i++ {
		g.Go(func() error {
			for event := range d.events {
				// ctx is cancelled while draining
				d.Handle(context.WithoutCancel(ctx), event)
			}
			return nil
		})
	}

	d.logger.Info("vote dispatcher started", zap.Int("workers", d.config.Workers), zap.Int("queue_size", d.config.QueueSize))
	<-ctx.Done()

	d.mu.Lock()
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	err := g.Wait()
	d.logger.Info("vote dispatcher stopped")
	return err
}

// Handle processes a single event. Failures are logged, not retried.
func (d *Dispatcher) Handle(ctx context.Context, event VoteRecorded) {
	rec, changed, err := d.flagger.FlagReported(ctx, event.CommentID)
	if err != nil {
		d.logger.Error("failed to re-evaluate reported comment",
			zap.Int64("comment_id", event.CommentID),
			zap.Error(err),
		)
		return
	}
	if changed {
		d.logger.Info("comment moved to reported",
			zap.Int64("comment_id", event.CommentID),
			zap.Int64("classification_id", rec.ID),
		)
	}
}

// Pending returns the number of queued events
func (d *Dispatcher) Pending() int {
	return len(d.events)
}
