package store

import "time"

// MessageType is the client's native message type code.
type MessageType int

// The codes the messaging client writes; everything else reports as "other".
const (
	TypeText    MessageType = 1
	TypeImage   MessageType = 3
	TypeVoice   MessageType = 34
	TypeVideo   MessageType = 43
	TypeSticker MessageType = 47
	TypeRich    MessageType = 49
)

// Label returns a stable human-readable bucket name for aggregate output.
func (t MessageType) Label() string {
	switch t {
	case TypeText:
		return "text"
	case TypeImage:
		return "image"
	case TypeVoice:
		return "voice"
	case TypeVideo:
		return "video"
	case TypeSticker:
		return "sticker"
	case TypeRich:
		return "link"
	default:
		return "other"
	}
}

// Session identifies one conversation, 1:1 or group.
type Session struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
	IsGroup     bool      `json:"isGroup"`
	Summary     string    `json:"summary,omitempty"`
	LastTime    time.Time `json:"lastTime"`
}

// Message is a single chat event within a session.
type Message struct {
	Sender   string      `json:"sender"`
	IsSender bool        `json:"isSender"`
	Type     MessageType `json:"type"`
	Time     time.Time   `json:"time"`
	Content  string      `json:"content"`
}

// MessageBatch is one page of messages, newest first, with pagination state.
type MessageBatch struct {
	Messages   []Message `json:"messages"`
	TotalCount int       `json:"totalCount"`
	HasMore    bool      `json:"hasMore"`
	NextOffset int       `json:"nextOffset,omitempty"`
}

// SessionStats is the aggregate message count split for one session.
type SessionStats struct {
	Total    int64 `json:"total"`
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
}

// TimeRange is the first and last message time of a session. Zero values mean
// the session has no messages.
type TimeRange struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}
