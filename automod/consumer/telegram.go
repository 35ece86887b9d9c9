package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/groupguard/groupguard/automod"
	"github.com/groupguard/groupguard/automod/engine"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/redis/go-redis/v9"
)

var updateCursorKey = "groupguard/update-id"

// Receives updates from the Telegram Bot API (long polling), translates them, and hands them to the engine.
// Bot commands are answered here.
type TelegramConsumer struct {
	Logger      *slog.Logger
	RedisClient *redis.Client
	Engine      *automod.Engine
	// Telegram user ID allowed to run admin commands. Zero disables them.
	AdminID int64
	Bot     *bot.Bot

	// lastUpdateID is the highest update ID we've received and begun to handle. Periodically persisted to
	// redis, if redis is present. Updates are handled concurrently, so use atomics, and only move it forward.
	lastUpdateID int64
}

// Creates the Bot API client, resuming from the persisted update cursor. The returned bot is also used to
// build the engine's platform.
func (tc *TelegramConsumer) Connect(ctx context.Context, token string, opts ...bot.Option) (*bot.Bot, error) {
	cur, err := tc.ReadLastCursor(ctx)
	if err != nil {
		return nil, err
	}

	opts = append([]bot.Option{bot.WithDefaultHandler(tc.HandleUpdate)}, opts...)
	if cur > 0 {
		opts = append(opts, bot.WithInitialOffset(cur))
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram bot API: %w", err)
	}
	tc.Bot = b
	tc.Logger.Info("connected to telegram bot API", "cursor", cur)
	return b, nil
}

// Polls for updates until the context is cancelled.
func (tc *TelegramConsumer) Run(ctx context.Context) error {
	if tc.Engine == nil {
		return fmt.Errorf("nil engine")
	}
	if tc.Bot == nil {
		return fmt.Errorf("telegram bot not connected")
	}
	tc.Logger.Info("starting telegram update polling")
	tc.Bot.Start(ctx)
	return nil
}

func (tc *TelegramConsumer) HandleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	tc.advanceCursor(update.ID)
	if update.Message == nil {
		return
	}
	tc.HandleMessage(ctx, update.Message)
}

// Handlers run concurrently and can finish out of order, so a plain store could move the cursor backwards.
func (tc *TelegramConsumer) advanceCursor(updateID int64) {
	for {
		cur := atomic.LoadInt64(&tc.lastUpdateID)
		if updateID <= cur || atomic.CompareAndSwapInt64(&tc.lastUpdateID, cur, updateID) {
			return
		}
	}
}

// NOTE: for now, this function basically never errors, just logs.
func (tc *TelegramConsumer) HandleMessage(ctx context.Context, m *models.Message) {
	logger := tc.Logger.With("chat", m.Chat.ID, "message", m.ID)

	if cmd := ParseCommand(m); cmd != nil {
		tc.handleCommand(ctx, logger, m, cmd)
	}

	if evt := JoinFromTelegram(m); evt != nil {
		if err := tc.Engine.ProcessJoin(ctx, evt); err != nil {
			logger.Error("engine failed to process join", "err", err)
		}
		return
	}

	msg := MessageFromTelegram(m)
	if msg == nil {
		return
	}
	if _, err := tc.Engine.ProcessMessage(ctx, msg); err != nil {
		logger.Error("engine failed to process message", "err", err)
	}
}

func (tc *TelegramConsumer) ReadLastCursor(ctx context.Context) (int64, error) {
	// if redis isn't configured, just skip
	if tc.RedisClient == nil {
		tc.Logger.Info("redis not configured, skipping cursor read")
		return 0, nil
	}

	val, err := tc.RedisClient.Get(ctx, updateCursorKey).Int64()
	if err == redis.Nil {
		tc.Logger.Info("no pre-existing cursor in redis")
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	tc.Logger.Info("successfully found prior update cursor in redis", "updateID", val)
	return val, nil
}

func (tc *TelegramConsumer) PersistCursor(ctx context.Context) error {
	// if redis isn't configured, just skip
	if tc.RedisClient == nil {
		return nil
	}
	lastUpdateID := atomic.LoadInt64(&tc.lastUpdateID)
	if lastUpdateID <= 0 {
		return nil
	}
	// telegram only keeps undelivered updates for 24 hours
	return tc.RedisClient.Set(ctx, updateCursorKey, lastUpdateID, 48*time.Hour).Err()
}

// this method runs in a loop, persisting the current cursor state every 5 seconds
func (tc *TelegramConsumer) RunPersistCursor(ctx context.Context) error {

	// if redis isn't configured, just skip
	if tc.RedisClient == nil {
		return nil
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			lastUpdateID := atomic.LoadInt64(&tc.lastUpdateID)
			if lastUpdateID >= 1 {
				tc.Logger.Info("persisting final cursor value", "updateID", lastUpdateID)
				// parent context is already cancelled
				if err := tc.PersistCursor(context.Background()); err != nil {
					tc.Logger.Error("failed to persist cursor", "err", err, "updateID", lastUpdateID)
				}
			}
			return nil
		case <-ticker.C:
			lastUpdateID := atomic.LoadInt64(&tc.lastUpdateID)
			if lastUpdateID >= 1 {
				if err := tc.PersistCursor(ctx); err != nil {
					tc.Logger.Error("failed to persist cursor", "err", err, "updateID", lastUpdateID)
				}
			}
		}
	}
}

func isGroupChat(c models.Chat) bool {
	return c.Type == models.ChatTypeGroup || c.Type == models.ChatTypeSupergroup
}

// Translates a group chat message into an engine message. Returns nil for anything which should not be
// moderated: private chats and channels, bot senders, service messages.
func MessageFromTelegram(m *models.Message) *engine.Message {
	if m == nil || !isGroupChat(m.Chat) || m.From == nil || m.From.IsBot {
		return nil
	}
	msg := engine.Message{
		ChatID:    m.Chat.ID,
		MessageID: m.ID,
		MemberID:  m.From.ID,
		Username:  m.From.Username,
		FirstName: m.From.FirstName,
		Text:      m.Text,
		Time:      messageTime(m.Date),
	}
	if msg.Text == "" {
		msg.Text = m.Caption
	}
	// replies in non-forum chats also carry a thread ID
	if m.IsTopicMessage {
		msg.ThreadID = m.MessageThreadID
	}
	if p := largestPhoto(m.Photo); p != nil {
		msg.ImageRef = p.FileID
	}
	if msg.Text == "" && msg.ImageRef == "" {
		return nil
	}
	return &msg
}

// zero (unknown) date leaves the time for the engine to fill in
func messageTime(date int) time.Time {
	if date <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(date), 0).UTC()
}

func largestPhoto(sizes []models.PhotoSize) *models.PhotoSize {
	var best *models.PhotoSize
	for i := range sizes {
		if best == nil || sizes[i].Width*sizes[i].Height > best.Width*best.Height {
			best = &sizes[i]
		}
	}
	return best
}

// Translates a "new chat members" service message into a join event. Bots joining are ignored.
func JoinFromTelegram(m *models.Message) *engine.JoinEvent {
	if m == nil || !isGroupChat(m.Chat) || len(m.NewChatMembers) == 0 {
		return nil
	}
	evt := engine.JoinEvent{
		ChatID: m.Chat.ID,
		Time:   messageTime(m.Date),
	}
	if m.From != nil {
		evt.AdderID = m.From.ID
	}
	for _, u := range m.NewChatMembers {
		if u.IsBot {
			continue
		}
		evt.MemberIDs = append(evt.MemberIDs, u.ID)
	}
	if len(evt.MemberIDs) == 0 {
		return nil
	}
	return &evt
}
