package engine

import (
	"context"
)

// Identifies the language of message text.
type LanguageClassifier interface {
	// Returns an ISO 639-1 language tag, or "" if the language could not be determined.
	Classify(ctx context.Context, text string) (string, error)
}

// Scores the probability that a message (text and optional image) is a scam or otherwise fraudulent.
type RiskClassifier interface {
	// Score should be in the range [0.0, 1.0]. Out-of-range values are clamped by the engine.
	Score(ctx context.Context, text string, image []byte) (float64, error)
}

// The messaging platform the engine moderates. Implementations wrap errors as they see fit; the engine treats
// every failure as an independent, non-fatal event.
type Platform interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	BanMember(ctx context.Context, chatID, memberID int64) error
	// Only lifts an existing ban; must not remove a member who is not banned.
	UnbanMember(ctx context.Context, chatID, memberID int64) error
	// Sends text to the chat, as a reply to the given message.
	ReplyTo(ctx context.Context, chatID int64, messageID int, text string) error
	IsChatAdmin(ctx context.Context, chatID, memberID int64) (bool, error)
	// Downloads media by platform-specific reference (eg, a file ID).
	FetchImage(ctx context.Context, ref string) ([]byte, error)
}
