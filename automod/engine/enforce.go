package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/groupguard/groupguard/automod/countstore"
	"github.com/groupguard/groupguard/automod/helpers"
	"github.com/groupguard/groupguard/automod/truststore"
)

// Member flags, persisted in the FlagStore.
const (
	FlagLanguageWarning = "language-warning"
	FlagScamBan         = "scam-ban"
	// Set once a ban has been confirmed and counted. Cleared by admin unban.
	FlagBanned = "banned"
)

// Counter names, in the CountStore.
const (
	counterQuota   = "automod-quota"
	counterActions = "automod-action"
)

func memberFlagKey(memberID, chatID int64) string {
	return fmt.Sprintf("%d/%d", chatID, memberID)
}

// Applies the verdict's action on the platform and records the outcome. Each platform call is attempted
// independently and failures are logged, never returned; store failures are logged and do not roll back
// platform state.
func (eng *Engine) Enforce(ctx context.Context, msg *Message, v *Verdict) {
	logger := eng.Logger.With("chat", msg.ChatID, "member", msg.MemberID, "message", msg.MessageID, "action", string(v.Action))

	switch v.Action {
	case ActionAllow:
		return
	case ActionWarnAndDelete:
		eng.warnAndDelete(ctx, logger, msg)
	case ActionDeleteAndBan:
		eng.deleteAndBan(ctx, logger, msg, v)
	default:
		logger.Error("unhandled enforcement action")
		return
	}

	if err := eng.Counters.Increment(ctx, counterActions, string(v.Action)); err != nil {
		logger.Error("failed to count enforcement action", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
	actionCount.WithLabelValues(string(v.Action)).Inc()
}

func (eng *Engine) warnAndDelete(ctx context.Context, logger *slog.Logger, msg *Message) {
	warning := strings.TrimSpace(msg.Mention() + " " + eng.Config.WarningText)
	if err := eng.Platform.ReplyTo(ctx, msg.ChatID, msg.MessageID, warning); err != nil {
		logger.Error("failed to send warning reply", "err", fmt.Errorf("%w: %w", ErrPlatformActionFailed, err))
		platformErrorCount.WithLabelValues("reply").Inc()
	}
	if err := eng.Platform.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		logger.Error("failed to delete message", "err", fmt.Errorf("%w: %w", ErrPlatformActionFailed, err))
		platformErrorCount.WithLabelValues("delete").Inc()
	}
	if err := eng.Flags.Add(ctx, memberFlagKey(msg.MemberID, msg.ChatID), []string{FlagLanguageWarning}); err != nil {
		logger.Error("failed to flag member", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
	logger.Info("warned member and deleted message")
	eng.notify(ctx, logger, &ActionNotice{
		ChatID:   msg.ChatID,
		MemberID: msg.MemberID,
		Username: msg.Username,
		Action:   ActionWarnAndDelete,
		Text:     msg.Text,
	})
}

func (eng *Engine) deleteAndBan(ctx context.Context, logger *slog.Logger, msg *Message, v *Verdict) {
	if err := eng.Platform.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		logger.Error("failed to delete message", "err", fmt.Errorf("%w: %w", ErrPlatformActionFailed, err))
		platformErrorCount.WithLabelValues("delete").Inc()
	}

	notice := &ActionNotice{
		ChatID:   msg.ChatID,
		MemberID: msg.MemberID,
		Username: msg.Username,
		Action:   ActionDeleteAndBan,
		Risk:     v.Risk,
		Text:     msg.Text,
	}

	if !eng.circuitBreakBan(ctx, logger) {
		notice.BanSkipped = true
		eng.notify(ctx, logger, notice)
		return
	}

	if err := eng.Platform.BanMember(ctx, msg.ChatID, msg.MemberID); err != nil {
		logger.Error("failed to ban member; not counted", "risk", v.Risk, "err", fmt.Errorf("%w: %w", ErrPlatformActionFailed, err))
		platformErrorCount.WithLabelValues("ban").Inc()
		notice.BanFailed = true
		eng.notify(ctx, logger, notice)
		return
	}
	// text hash correlates the same spam campaign across chats
	logger.Warn("banned member for high-risk message", "risk", v.Risk, "textHash", helpers.HashOfString(msg.Text))
	eng.recordBan(ctx, logger, msg.MemberID, msg.ChatID)
	eng.notify(ctx, logger, notice)
}

// Counts a confirmed ban, once per (member, chat), and marks the member untrusted.
func (eng *Engine) recordBan(ctx context.Context, logger *slog.Logger, memberID, chatID int64) {
	flagKey := memberFlagKey(memberID, chatID)
	// setting the flag and checking it is one operation, so concurrent bans of the same member count once
	isNew, err := eng.Flags.AddNew(ctx, flagKey, FlagBanned)
	if err != nil {
		// flags unknown, so the ban is counted
		logger.Error("failed to flag banned member", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		isNew = true
	}
	if err := eng.Flags.Add(ctx, flagKey, []string{FlagScamBan}); err != nil {
		logger.Error("failed to flag banned member", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
	if !isNew {
		logger.Info("member ban already counted")
	} else {
		if err := eng.Trust.IncrementBlockedCount(ctx, chatID); err != nil {
			logger.Error("failed to increment chat blocked count", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
			storeErrorCount.WithLabelValues("increment-blocked").Inc()
		}
		if err := eng.Trust.IncrementGlobalBlockedCount(ctx); err != nil {
			logger.Error("failed to increment global blocked count", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
			storeErrorCount.WithLabelValues("increment-global-blocked").Inc()
		}
		banCount.Inc()
	}

	if err := eng.markUntrusted(ctx, memberID, chatID); err != nil {
		logger.Error("failed to mark banned member untrusted", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		storeErrorCount.WithLabelValues("put-member").Inc()
	}
}

// Marks the member untrusted. A record with a join time is updated in place, leaving the other fields alone. A
// missing record is created, joined now; a record with no join time is rewritten with one, since an untrusted
// member with no join time would be treated as trusted.
func (eng *Engine) markUntrusted(ctx context.Context, memberID, chatID int64) error {
	m, err := eng.Trust.GetMember(ctx, memberID, chatID)
	if err != nil {
		return err
	}
	if m != nil && m.JoinTime != nil {
		return eng.Trust.SetTrusted(ctx, memberID, chatID, false)
	}

	now := eng.now()
	if m == nil {
		created, err := eng.Trust.CreateMember(ctx, truststore.Member{MemberID: memberID, ChatID: chatID, JoinTime: &now})
		if err != nil || created {
			return err
		}
		// created concurrently; take the fresh record
		if m, err = eng.Trust.GetMember(ctx, memberID, chatID); err != nil {
			return err
		}
		if m == nil {
			return truststore.ErrMemberNotFound
		}
		if m.JoinTime != nil {
			return eng.Trust.SetTrusted(ctx, memberID, chatID, false)
		}
	}
	m.JoinTime = &now
	m.Trusted = false
	return eng.Trust.PutMember(ctx, *m)
}

// Returns true if a ban may go ahead. Every attempt counts against the daily quota.
func (eng *Engine) circuitBreakBan(ctx context.Context, logger *slog.Logger) bool {
	if eng.Config.BanQuotaDay <= 0 {
		return true
	}
	c, err := eng.Counters.GetCount(ctx, counterQuota, "ban", countstore.PeriodDay)
	if err != nil {
		// quota unknown, fail open
		logger.Error("failed to read ban quota", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		return true
	}
	if c >= eng.Config.BanQuotaDay {
		logger.Warn("CIRCUIT BREAKER: automod bans", "quota", eng.Config.BanQuotaDay)
		circuitBreakerCount.WithLabelValues("ban").Inc()
		return false
	}
	if err := eng.Counters.Increment(ctx, counterQuota, "ban"); err != nil {
		logger.Error("failed to count ban against quota", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
	return true
}
