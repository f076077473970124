package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zpam/comment-moderator/pkg/abuse"
	"github.com/zpam/comment-moderator/pkg/model"
)

type createCommentRequest struct {
	Text    string `json:"text" binding:"required"`
	IsReply bool   `json:"is_reply"`
}

type classifyRequest struct {
	Class string `json:"class"`
}

type voteRequest struct {
	Token string `json:"token" binding:"required"`
	Vote  int    `json:"vote" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createComment handles POST /comments
func (s *Server) createComment(c *gin.Context) {
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text cannot be empty"})
		return
	}

	ctx := c.Request.Context()
	comment := model.Comment{Text: req.Text, IsReply: req.IsReply}
	if err := s.store.CreateComment(ctx, &comment); err != nil {
		s.fail(c, err)
		return
	}

	if _, _, err := s.moderator.OnCommentCreated(ctx, comment); err != nil {
		// the comment exists; it will be picked up by the next batch run
		s.logger.Error("realtime classification failed", zap.Int64("comment_id", comment.ID), zap.Error(err))
	}

	mc, err := s.store.ModeratedComment(ctx, comment.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, mc)
}

// getComment handles GET /comments/:id
func (s *Server) getComment(c *gin.Context) {
	id, ok := commentID(c)
	if !ok {
		return
	}

	mc, err := s.store.ModeratedComment(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mc)
}

// classifyComment handles PUT /comments/:id/classification.
// An empty class lets the classifier decide.
func (s *Server) classifyComment(c *gin.Context) {
	id, ok := commentID(c)
	if !ok {
		return
	}

	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := s.moderator.ClassifyComment(c.Request.Context(), id, model.Class(req.Class))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// recordVote handles POST /comments/:id/votes
func (s *Server) recordVote(c *gin.Context) {
	id, ok := commentID(c)
	if !ok {
		return
	}

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	vote := model.Vote{CommentID: id, Token: req.Token, Value: req.Vote}
	if err := vote.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := s.store.ModeratedComment(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.RecordVote(ctx, vote); err != nil {
		s.fail(c, err)
		return
	}

	queued := true
	if err := s.votes.Publish(abuse.VoteRecorded{CommentID: id, Token: vote.Token, Vote: vote.Value}); err != nil {
		// the vote is stored; the next vote or batch run re-evaluates it
		s.logger.Warn("vote event dropped", zap.Int64("comment_id", id), zap.Error(err))
		queued = false
	}

	c.JSON(http.StatusAccepted, gin.H{"comment_id": id, "vote": vote.Value, "queued": queued})
}

// listClassified handles GET /classified?class=spam&limit=50
func (s *Server) listClassified(c *gin.Context) {
	class, err := model.ParseClass(c.Query("class"))
	if err != nil {
		s.fail(c, err)
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	comments, err := s.moderator.ListClassified(c.Request.Context(), class, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"class": class.String(), "comments": comments})
}

// classifierStats handles GET /classifier
func (s *Server) classifierStats(c *gin.Context) {
	counts := s.moderator.Counts()
	c.JSON(http.StatusOK, gin.H{
		"spam_count": counts.SpamCount,
		"ham_count":  counts.HamCount,
	})
}

func commentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return 0, false
	}
	return id, true
}

// fail maps domain errors to HTTP status codes
func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, model.ErrInvalidClassification), errors.Is(err, model.ErrEmptyReply):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrCommentNotFound),
		errors.Is(err, model.ErrReplyNotFound),
		errors.Is(err, model.ErrCannedReplyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
