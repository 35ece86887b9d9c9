package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/groupguard/groupguard/automod/truststore"
)

const chatAdminCacheName = "chat-admin"

// Reports whether the member is currently new (untrusted) in the chat.
//
// Members with no record are assumed to predate the bot, and are recorded as trusted. Untrusted members older
// than NewMemberThreshold are promoted to trusted. Store failures fail open (the member is treated as trusted).
func (eng *Engine) IsUntrusted(ctx context.Context, memberID, chatID int64, now time.Time) bool {
	logger := eng.Logger.With("chat", chatID, "member", memberID)

	m, err := eng.Trust.GetMember(ctx, memberID, chatID)
	if err != nil {
		logger.Error("failed to read member record, treating as trusted", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		storeErrorCount.WithLabelValues("get-member").Inc()
		return false
	}

	if m == nil {
		// a join may be recorded concurrently; that record wins over the cold-start default
		created, err := eng.Trust.CreateMember(ctx, truststore.Member{
			MemberID: memberID,
			ChatID:   chatID,
			Trusted:  true,
		})
		if err != nil {
			logger.Error("failed to record pre-existing member", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
			storeErrorCount.WithLabelValues("create-member").Inc()
			return false
		}
		if created {
			logger.Debug("recorded pre-existing member as trusted")
			return false
		}
		m, err = eng.Trust.GetMember(ctx, memberID, chatID)
		if err != nil {
			logger.Error("failed to read member record, treating as trusted", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
			storeErrorCount.WithLabelValues("get-member").Inc()
			return false
		}
		if m == nil {
			return false
		}
	}

	if m.Trusted {
		return false
	}

	if m.JoinTime == nil {
		logger.Warn("untrusted member record has no join time, treating as trusted")
		return false
	}

	age := now.Sub(*m.JoinTime)
	if age > eng.Config.NewMemberThreshold {
		if err := eng.Trust.SetTrusted(ctx, memberID, chatID, true); err != nil {
			logger.Error("failed to promote member to trusted", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
			storeErrorCount.WithLabelValues("set-trusted").Inc()
		} else {
			logger.Info("member aged out of new-member period, now trusted", "age", age)
			trustPromotionCount.Inc()
		}
		return false
	}
	return true
}

// Admin lookups are cached, since join bursts (eg, during a raid) would otherwise hit the platform once per
// event. Lookup failures count as "not an admin".
func (eng *Engine) isChatAdmin(ctx context.Context, logger *slog.Logger, chatID, memberID int64) bool {
	key := fmt.Sprintf("%d/%d", chatID, memberID)
	cached, err := eng.Cache.Get(ctx, chatAdminCacheName, key)
	if err != nil {
		logger.Warn("chat admin cache read failed", "err", err)
	} else if cached != "" {
		return cached == "true"
	}

	isAdmin, err := eng.Platform.IsChatAdmin(ctx, chatID, memberID)
	if err != nil {
		logger.Error("failed to check chat admin status", "member", memberID, "err", fmt.Errorf("%w: %w", ErrPlatformActionFailed, err))
		platformErrorCount.WithLabelValues("is-chat-admin").Inc()
		return false
	}
	if err := eng.Cache.Set(ctx, chatAdminCacheName, key, strconv.FormatBool(isAdmin)); err != nil {
		logger.Warn("chat admin cache write failed", "err", err)
	}
	return isAdmin
}
