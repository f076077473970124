package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidClassification is returned for a class label outside the known set
	ErrInvalidClassification = errors.New("unrecognized classification")
	// ErrCommentNotFound is returned when a comment identity does not exist
	ErrCommentNotFound = errors.New("comment not found")
	// ErrCannedReplyNotFound is returned for an unknown canned reply
	ErrCannedReplyNotFound = errors.New("canned reply not found")
	// ErrReplyNotFound is returned when a comment has no moderator reply
	ErrReplyNotFound = errors.New("reply not found")
	// ErrEmptyReply is returned for a reply without text
	ErrEmptyReply = errors.New("reply text is empty")
)

// Class is the moderation label of a comment
type Class string

const (
	// ClassNone is the class of a freshly created record, and the
	// "let the classifier decide" argument to classification.
	ClassNone     Class = ""
	ClassHam      Class = "ham"
	ClassSpam     Class = "spam"
	ClassUnsure   Class = "unsure"
	ClassReported Class = "reported"
)

// Classes lists the assignable labels in display order
var Classes = []Class{ClassReported, ClassSpam, ClassHam, ClassUnsure}

// ParseClass converts user input into a Class. The empty string maps to ClassNone.
func ParseClass(s string) (Class, error) {
	c := Class(s)
	if !c.Valid() {
		return ClassNone, fmt.Errorf("%w: %q", ErrInvalidClassification, s)
	}
	return c, nil
}

// Valid reports whether c is ClassNone or one of Classes
func (c Class) Valid() bool {
	switch c {
	case ClassNone, ClassHam, ClassSpam, ClassUnsure, ClassReported:
		return true
	}
	return false
}

// Removed reports whether a comment carrying this class must be hidden
func (c Class) Removed() bool {
	return c == ClassSpam || c == ClassReported
}

func (c Class) String() string {
	if c == ClassNone {
		return "none"
	}
	return string(c)
}

// Comment is a user-submitted comment as seen by the moderator
type Comment struct {
	ID          int64     `json:"id"`
	Text        string    `json:"text"`
	IsRemoved   bool      `json:"is_removed"`
	IsReply     bool      `json:"is_reply"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ClassifiedComment records the current class of a comment.
// There is at most one per comment.
type ClassifiedComment struct {
	ID        int64 `json:"id" db:"id"`
	CommentID int64 `json:"comment_id" db:"comment_id"`
	Class     Class `json:"class" db:"cls"`
}

// CannedReply is a stock answer moderators can post on a comment
type CannedReply struct {
	ID   int64  `json:"id" db:"id"`
	Text string `json:"text" db:"text"`
}

// CommentReply links a comment to the reply comment a moderator posted on
// it. The reply is itself a comment with IsReply set, submitted one second
// before or after the comment it answers.
type CommentReply struct {
	ID            int64   `json:"id"`
	CommentID     int64   `json:"comment_id"`
	CannedReplyID *int64  `json:"canned_reply_id,omitempty"`
	Reply         Comment `json:"reply"`
}

// ModeratedComment is a comment joined with its classification, if any
type ModeratedComment struct {
	Comment
	Class Class `json:"class"`
}

// Vote is a single up (+1) or down (-1) vote on a comment by a voter token
type Vote struct {
	CommentID int64  `json:"comment_id"`
	Token     string `json:"token"`
	Value     int    `json:"vote"`
}

// Validate checks that the vote is usable
func (v Vote) Validate() error {
	if v.Token == "" {
		return errors.New("vote token is required")
	}
	if v.Value != 1 && v.Value != -1 {
		return fmt.Errorf("vote must be +1 or -1, got %d", v.Value)
	}
	return nil
}
