// Telegram Bot API implementation of the moderation platform.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/groupguard/groupguard/automod/engine"
	"github.com/groupguard/groupguard/util"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Telegram's own limit for bot file downloads
const DefaultMaxImageBytes = 20 * 1024 * 1024

// Subset of the Bot API used for moderation. Implemented by *bot.Bot.
type BotAPI interface {
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	BanChatMember(ctx context.Context, params *bot.BanChatMemberParams) (bool, error)
	UnbanChatMember(ctx context.Context, params *bot.UnbanChatMemberParams) (bool, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	FileDownloadLink(f *models.File) string
}

var _ BotAPI = (*bot.Bot)(nil)

type Client struct {
	Bot BotAPI
	// used for file downloads; the Bot API client does its own HTTP
	HTTPClient    *http.Client
	MaxImageBytes int64
	Logger        *slog.Logger
}

var _ engine.Platform = (*Client)(nil)

func NewClient(b BotAPI, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Bot:           b,
		HTTPClient:    util.RobustHTTPClient(),
		MaxImageBytes: DefaultMaxImageBytes,
		Logger:        logger.With("system", "telegram"),
	}
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	ok, err := c.Bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		return fmt.Errorf("deleteMessage: %w", err)
	}
	if !ok {
		return fmt.Errorf("deleteMessage: not deleted")
	}
	return nil
}

func (c *Client) BanMember(ctx context.Context, chatID, memberID int64) error {
	ok, err := c.Bot.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: chatID,
		UserID: memberID,
	})
	if err != nil {
		return fmt.Errorf("banChatMember: %w", err)
	}
	if !ok {
		return fmt.Errorf("banChatMember: not banned")
	}
	return nil
}

// Only lifts an existing ban; members who are still in the chat are left alone.
func (c *Client) UnbanMember(ctx context.Context, chatID, memberID int64) error {
	ok, err := c.Bot.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
		ChatID:       chatID,
		UserID:       memberID,
		OnlyIfBanned: true,
	})
	if err != nil {
		return fmt.Errorf("unbanChatMember: %w", err)
	}
	if !ok {
		return fmt.Errorf("unbanChatMember: not unbanned")
	}
	return nil
}

func (c *Client) ReplyTo(ctx context.Context, chatID int64, messageID int, text string) error {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if messageID != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                messageID,
			AllowSendingWithoutReply: true,
		}
	}
	if _, err := c.Bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	return nil
}

func (c *Client) IsChatAdmin(ctx context.Context, chatID, memberID int64) (bool, error) {
	cm, err := c.Bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: chatID,
		UserID: memberID,
	})
	if err != nil {
		return false, fmt.Errorf("getChatMember: %w", err)
	}
	switch cm.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator:
		return true, nil
	default:
		return false, nil
	}
}

// Downloads a file (photo) by Telegram file ID.
func (c *Client) FetchImage(ctx context.Context, ref string) ([]byte, error) {
	f, err := c.Bot.GetFile(ctx, &bot.GetFileParams{FileID: ref})
	if err != nil {
		return nil, fmt.Errorf("getFile: %w", err)
	}
	if c.MaxImageBytes > 0 && f.FileSize > c.MaxImageBytes {
		return nil, fmt.Errorf("image too large: %d bytes", f.FileSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Bot.FileDownloadLink(f), nil)
	if err != nil {
		return nil, err
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// NOTE: the download link includes the bot token, so don't log the URL
		return nil, fmt.Errorf("image download failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download failed: status=%d", resp.StatusCode)
	}

	limit := c.MaxImageBytes
	if limit <= 0 {
		limit = DefaultMaxImageBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading image body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("image too large: over %d bytes", limit)
	}
	c.Logger.Debug("fetched image", "file", ref, "size", len(body))
	return body, nil
}
