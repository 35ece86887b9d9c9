package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"
)

const (
	greetingText   = "Вітаю, Юначе!"
	statsText      = "🚫 Заблоковано ботів: %d"
	unbanUsageText = "Usage: /unban_user <user_id> <chat_id>"
)

type Command struct {
	Name string
	Args []string
}

// Parses a bot command from message text, eg "/unban_user@guardbot 42 -100123". Returns nil if the message is
// not a command.
func ParseCommand(m *models.Message) *Command {
	if m == nil || !strings.HasPrefix(m.Text, "/") {
		return nil
	}
	fields := strings.Fields(m.Text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return nil
	}
	return &Command{
		Name: strings.ToLower(name),
		Args: fields[1:],
	}
}

func (tc *TelegramConsumer) handleCommand(ctx context.Context, logger *slog.Logger, m *models.Message, cmd *Command) {
	var reply string
	switch cmd.Name {
	case "start":
		reply = greetingText
	case "stats":
		c, err := tc.Engine.BlockedCount(ctx)
		if err != nil {
			logger.Error("failed to read blocked count", "err", err)
			return
		}
		reply = fmt.Sprintf(statsText, c)
	case "unban_user":
		reply = tc.unbanCommand(ctx, logger, m, cmd.Args)
	default:
		return
	}
	if reply == "" {
		return
	}
	if err := tc.Engine.Platform.ReplyTo(ctx, m.Chat.ID, m.ID, reply); err != nil {
		logger.Error("failed to reply to command", "command", cmd.Name, "err", err)
	}
}

// Admin-only, and only in a private chat with the bot. Other senders get no reply.
func (tc *TelegramConsumer) unbanCommand(ctx context.Context, logger *slog.Logger, m *models.Message, args []string) string {
	if m.Chat.Type != models.ChatTypePrivate || m.From == nil {
		return ""
	}
	if tc.AdminID == 0 {
		return "Error: Admin ID not configured."
	}
	if m.From.ID != tc.AdminID {
		logger.Warn("unban command from non-admin", "sender", m.From.ID)
		return ""
	}
	if len(args) != 2 {
		return unbanUsageText
	}
	memberID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Error: IDs must be integers."
	}
	chatID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "Error: IDs must be integers."
	}

	if err := tc.Engine.Unban(ctx, memberID, chatID); err != nil {
		logger.Error("admin unban failed", "member", memberID, "targetChat", chatID, "err", err)
		return fmt.Sprintf("Error: %s", err)
	}
	return fmt.Sprintf("✅ User %d unbanned from Chat %d, and marked as SAFE.", memberID, chatID)
}
