package engine

import (
	"fmt"
	"time"
)

// A single incoming group message, already translated from the platform's representation.
type Message struct {
	ChatID    int64
	MessageID int
	// Forum topic the message was posted in. Zero for chats without topics.
	ThreadID  int
	MemberID  int64
	Username  string
	FirstName string
	// Message text, or the media caption.
	Text string
	// Platform reference for an attached image, empty if there is none.
	ImageRef string
	// Zero means "now".
	Time time.Time
}

func (m *Message) HasImage() bool {
	return m.ImageRef != ""
}

// How the member should be addressed in a reply.
func (m *Message) Mention() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	return m.FirstName
}

func (m *Message) validate() error {
	if m.ChatID == 0 || m.MemberID == 0 || m.MessageID == 0 {
		return fmt.Errorf("%w: chat=%d member=%d message=%d", ErrInvalidEvent, m.ChatID, m.MemberID, m.MessageID)
	}
	return nil
}

// One or more members joining a chat, possibly added by another member.
type JoinEvent struct {
	ChatID int64
	// Member who added the new members. Equal to the new member for self-joins (eg, invite links). Zero if
	// unknown.
	AdderID   int64
	MemberIDs []int64
	// Zero means "now".
	Time time.Time
}

type Action string

const (
	ActionAllow         Action = "allow"
	ActionWarnAndDelete Action = "warn-and-delete"
	ActionDeleteAndBan  Action = "delete-and-ban"
)

type Inspection int

const (
	InspectSkip Inspection = iota
	// Only the language heuristic applies; there is no risk score.
	InspectFlaggedOnly
	InspectFull
)

func (i Inspection) String() string {
	switch i {
	case InspectSkip:
		return "skip"
	case InspectFlaggedOnly:
		return "flagged-only"
	case InspectFull:
		return "full"
	default:
		return fmt.Sprintf("inspection(%d)", int(i))
	}
}

// Outcome of evaluating a single message.
type Verdict struct {
	Inspection Inspection
	Flagged    bool
	Untrusted  bool
	Risk       float64
	Action     Action
}
