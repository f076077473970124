package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zpam/comment-moderator/pkg/model"
	"github.com/zpam/comment-moderator/pkg/moderator"
)

type cannedReplyRequest struct {
	Text string `json:"text" binding:"required"`
}

type replyRequest struct {
	CannedReplyID *int64 `json:"canned_reply_id"`
	Text          string `json:"text"`
}

// createCannedReply handles POST /canned-replies
func (s *Server) createCannedReply(c *gin.Context) {
	var req cannedReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	reply := model.CannedReply{Text: req.Text}
	if err := s.store.CreateCannedReply(c.Request.Context(), &reply); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, reply)
}

// listCannedReplies handles GET /canned-replies
func (s *Server) listCannedReplies(c *gin.Context) {
	replies, err := s.store.ListCannedReplies(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"canned_replies": replies})
}

// getReply handles GET /comments/:id/reply
func (s *Server) getReply(c *gin.Context) {
	id, ok := commentID(c)
	if !ok {
		return
	}

	rec, err := s.store.Reply(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// saveReply handles PUT /comments/:id/reply. A canned_reply_id wins over text.
func (s *Server) saveReply(c *gin.Context) {
	id, ok := commentID(c)
	if !ok {
		return
	}

	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, created, err := s.moderator.Reply(c.Request.Context(), id, moderator.ReplyRequest{
		CannedReplyID: req.CannedReplyID,
		Text:          req.Text,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, rec)
}

// deleteReply handles DELETE /comments/:id/reply
func (s *Server) deleteReply(c *gin.Context) {
	id, ok := commentID(c)
	if !ok {
		return
	}

	if err := s.moderator.DeleteReply(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
