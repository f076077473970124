package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zpam/comment-moderator/pkg/model"
)

func TestCannedRepliesEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/canned-replies", map[string]string{"text": "Please keep it civil."})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[model.CannedReply](t, w)
	assert.NotZero(t, created.ID)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/canned-replies", map[string]string{"text": " "}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/canned-replies", map[string]string{}).Code)

	w = env.do(t, http.MethodGet, "/canned-replies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		CannedReplies []model.CannedReply `json:"canned_replies"`
	}](t, w)
	assert.Equal(t, []model.CannedReply{created}, body.CannedReplies)
}

func TestReplyEndpoints(t *testing.T) {
	env := newTestEnv(t)
	c := model.Comment{Text: "great article"}
	require.NoError(t, env.db.CreateComment(context.Background(), &c))
	path := fmt.Sprintf("/comments/%d/reply", c.ID)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil).Code)

	w := env.do(t, http.MethodPut, path, map[string]string{"text": "Thanks for reading."})
	require.Equal(t, http.StatusCreated, w.Code)
	rec := decode[model.CommentReply](t, w)
	assert.Equal(t, c.ID, rec.CommentID)
	assert.True(t, rec.Reply.IsReply)

	w = env.do(t, http.MethodPost, "/canned-replies", map[string]string{"text": "Noted, thanks."})
	require.Equal(t, http.StatusCreated, w.Code)
	canned := decode[model.CannedReply](t, w)

	w = env.do(t, http.MethodPut, path, map[string]interface{}{"canned_reply_id": canned.ID})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[model.CommentReply](t, w)
	assert.Equal(t, rec.Reply.ID, updated.Reply.ID)
	assert.Equal(t, "Noted, thanks.", updated.Reply.Text)

	w = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, updated, decode[model.CommentReply](t, w))

	// the reply comment is not moderated
	w = env.do(t, http.MethodGet, fmt.Sprintf("/comments/%d", rec.Reply.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.ClassNone, decode[model.ModeratedComment](t, w).Class)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, path, map[string]string{"text": ""}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, path, map[string]interface{}{"canned_reply_id": canned.ID + 100}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/comments/999/reply", map[string]string{"text": "hi"}).Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, fmt.Sprintf("/comments/%d", rec.Reply.ID), nil).Code)
}
