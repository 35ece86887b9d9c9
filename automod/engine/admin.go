package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/groupguard/groupguard/automod/countstore"
	"github.com/groupguard/groupguard/automod/truststore"
)

// Admin-facing operations. Unlike message processing, these return errors to the caller.

// Explicitly sets a member's trust. Revoking trust restarts the member's new-member period and message count,
// so the member is inspected again.
func (eng *Engine) OverrideTrust(ctx context.Context, memberID, chatID int64, trusted bool) error {
	m, err := eng.Trust.GetMember(ctx, memberID, chatID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if m == nil {
		m = &truststore.Member{MemberID: memberID, ChatID: chatID}
	}
	m.Trusted = trusted
	if !trusted {
		now := eng.now()
		m.JoinTime = &now
		m.MessageCount = 0
	}
	if err := eng.Trust.PutMember(ctx, *m); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	eng.Logger.Info("member trust overridden", "chat", chatID, "member", memberID, "trusted", trusted)
	return nil
}

// Writes a full member record, as provided by an admin. An untrusted record with no join time gets the
// current time.
func (eng *Engine) PutMember(ctx context.Context, m truststore.Member) error {
	if m.MessageCount < 0 {
		return fmt.Errorf("negative message count: %d", m.MessageCount)
	}
	if !m.Trusted && m.JoinTime == nil {
		now := eng.now()
		m.JoinTime = &now
	}
	if err := eng.Trust.PutMember(ctx, m); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Replaces the set of threads (forum topics) in the chat which are never inspected.
func (eng *Engine) ExcludeThreads(ctx context.Context, chatID int64, threads []int) error {
	if err := eng.Trust.SetExcludedThreads(ctx, chatID, threads); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	eng.Logger.Info("excluded threads updated", "chat", chatID, "threads", threads)
	return nil
}

// Total confirmed bans across all chats.
func (eng *Engine) BlockedCount(ctx context.Context) (int64, error) {
	c, err := eng.Trust.GetGlobalBlockedCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return c, nil
}

func (eng *Engine) ChatStats(ctx context.Context, chatID int64) (*truststore.ChatAggregate, error) {
	agg, err := eng.Trust.GetChatAggregate(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return agg, nil
}

type GlobalStats struct {
	BlockedCount  int64 `json:"blockedCount"`
	BansToday     int   `json:"bansToday"`
	WarningsToday int   `json:"warningsToday"`
	// Ban attempts counted against the daily quota. Zero if no quota is configured.
	BanQuotaUsed int `json:"banQuotaUsed"`
	BanQuotaDay  int `json:"banQuotaDay"`
}

func (eng *Engine) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	var err error
	s := GlobalStats{BanQuotaDay: eng.Config.BanQuotaDay}
	if s.BlockedCount, err = eng.BlockedCount(ctx); err != nil {
		return nil, err
	}
	if s.BansToday, err = eng.Counters.GetCount(ctx, counterActions, string(ActionDeleteAndBan), countstore.PeriodDay); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if s.WarningsToday, err = eng.Counters.GetCount(ctx, counterActions, string(ActionWarnAndDelete), countstore.PeriodDay); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if s.BanQuotaUsed, err = eng.Counters.GetCount(ctx, counterQuota, "ban", countstore.PeriodDay); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return &s, nil
}

type MemberStatus struct {
	MemberID     int64      `json:"memberId"`
	ChatID       int64      `json:"chatId"`
	Known        bool       `json:"known"`
	JoinTime     *time.Time `json:"joinTime,omitempty"`
	Trusted      bool       `json:"trusted"`
	MessageCount int64      `json:"messageCount"`
	Flags        []string   `json:"flags"`
}

func (eng *Engine) MemberStatus(ctx context.Context, memberID, chatID int64) (*MemberStatus, error) {
	m, err := eng.Trust.GetMember(ctx, memberID, chatID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	flags, err := eng.Flags.Get(ctx, memberFlagKey(memberID, chatID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	ms := MemberStatus{
		MemberID: memberID,
		ChatID:   chatID,
		Flags:    flags,
	}
	if m != nil {
		ms.Known = true
		ms.JoinTime = m.JoinTime
		ms.Trusted = m.Trusted
		ms.MessageCount = m.MessageCount
	}
	return &ms, nil
}

// Lifts a platform ban and records the member as trusted, joined now. Clears the banned flag, so a later ban
// is counted again.
func (eng *Engine) Unban(ctx context.Context, memberID, chatID int64) error {
	if err := eng.Platform.UnbanMember(ctx, chatID, memberID); err != nil {
		platformErrorCount.WithLabelValues("unban").Inc()
		return fmt.Errorf("%w: unban: %w", ErrPlatformActionFailed, err)
	}
	now := eng.now()
	err := eng.Trust.PutMember(ctx, truststore.Member{
		MemberID: memberID,
		ChatID:   chatID,
		JoinTime: &now,
		Trusted:  true,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if err := eng.Flags.Remove(ctx, memberFlagKey(memberID, chatID), []string{FlagBanned}); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	eng.Logger.Info("member unbanned by admin", "chat", chatID, "member", memberID)
	return nil
}
