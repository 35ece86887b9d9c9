package engine

import (
	"context"
	"log/slog"
)

// Details of an enforcement action, sent to notifiers.
type ActionNotice struct {
	ChatID   int64   `json:"chatId"`
	MemberID int64   `json:"memberId"`
	Username string  `json:"username,omitempty"`
	Action   Action  `json:"action"`
	Risk     float64 `json:"risk"`
	Text     string  `json:"text,omitempty"`
	// the ban was not attempted because of the daily quota
	BanSkipped bool `json:"banSkipped,omitempty"`
	BanFailed  bool `json:"banFailed,omitempty"`
}

// Interface for a type that can handle sending notifications
type Notifier interface {
	SendAction(ctx context.Context, n *ActionNotice) error
}

func (eng *Engine) notify(ctx context.Context, logger *slog.Logger, n *ActionNotice) {
	for _, notifier := range eng.Notifiers {
		if err := notifier.SendAction(ctx, n); err != nil {
			logger.Error("failed to send action notification", "err", err)
		}
	}
}
