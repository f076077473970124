package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zpam/comment-moderator/pkg/abuse"
	"github.com/zpam/comment-moderator/pkg/learning"
	"github.com/zpam/comment-moderator/pkg/model"
	"github.com/zpam/comment-moderator/pkg/moderator"
)

// CommentStore is the comment and vote persistence used by the API
type CommentStore interface {
	CreateComment(ctx context.Context, comment *model.Comment) error
	ModeratedComment(ctx context.Context, id int64) (model.ModeratedComment, error)
	RecordVote(ctx context.Context, vote model.Vote) error
	Ping(ctx context.Context) error

	CreateCannedReply(ctx context.Context, reply *model.CannedReply) error
	ListCannedReplies(ctx context.Context) ([]model.CannedReply, error)
	Reply(ctx context.Context, commentID int64) (model.CommentReply, error)
}

// Moderator classifies comments
type Moderator interface {
	ClassifyComment(ctx context.Context, commentID int64, explicit model.Class) (model.ClassifiedComment, error)
	OnCommentCreated(ctx context.Context, comment model.Comment) (model.ClassifiedComment, bool, error)
	ListClassified(ctx context.Context, class model.Class, limit int) ([]model.ModeratedComment, error)
	Counts() learning.State

	Reply(ctx context.Context, commentID int64, req moderator.ReplyRequest) (model.CommentReply, bool, error)
	DeleteReply(ctx context.Context, commentID int64) error
}

// Publisher queues vote events
type Publisher interface {
	Publish(event abuse.VoteRecorded) error
}

// Config holds HTTP server settings
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the moderation HTTP API
type Server struct {
	router    *gin.Engine
	store     CommentStore
	moderator Moderator
	votes     Publisher
	config    Config
	logger    *zap.Logger
}

// New creates the server and registers its routes
func New(store CommentStore, moderator Moderator, votes Publisher, config Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())

	s := &Server{
		router:    router,
		store:     store,
		moderator: moderator,
		votes:     votes,
		config:    config,
		logger:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.health)

	s.router.POST("/comments", s.createComment)
	s.router.GET("/comments/:id", s.getComment)
	s.router.PUT("/comments/:id/classification", s.classifyComment)
	s.router.POST("/comments/:id/votes", s.recordVote)
	s.router.GET("/comments/:id/reply", s.getReply)
	s.router.PUT("/comments/:id/reply", s.saveReply)
	s.router.DELETE("/comments/:id/reply", s.deleteReply)

	s.router.GET("/canned-replies", s.listCannedReplies)
	s.router.POST("/canned-replies", s.createCannedReply)

	s.router.GET("/classified", s.listClassified)
	s.router.GET("/classifier", s.classifierStats)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("address", s.config.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	grace := s.config.ShutdownTimeout
	if grace <= 0 {
		grace = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}
