// Package notifications delivers realtime events to connected users.
package notifications

import (
	"encoding/json"

	"chitchat/internal/models"
)

// Event types pushed to clients.
const (
	EventNewFollower = "new_follower"
	EventPostLiked   = "post_liked"
	EventPostReplied = "post_replied"
	EventMentioned   = "mentioned"
)

// Event is the envelope written to a websocket client.
type Event struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

// Payload names the acting user and, for post events, the post involved.
type Payload struct {
	Actor   models.UserSummary `json:"actor"`
	PostID  uint               `json:"postId,omitempty"`
	ReplyID uint               `json:"replyId,omitempty"`
}

// NewEvent builds an event of kind caused by actor.
func NewEvent(kind string, actor *models.User, postID, replyID uint) Event {
	ev := Event{Type: kind, Payload: Payload{PostID: postID, ReplyID: replyID}}
	if actor != nil {
		ev.Payload.Actor = actor.Summary()
	}
	return ev
}

func (e Event) encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
