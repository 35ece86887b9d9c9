package truststore

import (
	"context"
	"errors"
	"time"
)

// Returned by write operations which require an existing member record.
var ErrMemberNotFound = errors.New("member record not found")

// Durable per-(member, chat) trust state.
type Member struct {
	MemberID int64
	ChatID   int64
	// nil means the member joined before the bot started tracking the chat
	JoinTime     *time.Time
	Trusted      bool
	MessageCount int64
}

type ChatAggregate struct {
	ChatID          int64 `json:"chatId"`
	BlockedCount    int64 `json:"blockedCount"`
	ExcludedThreads []int `json:"excludedThreads"`
	KnownMembers    int64 `json:"knownMembers"`
}

// Interface for the durable trust state consumed by the moderation engine.
//
// Implementations must be safe for concurrent use. Counter and flag mutations are single atomic operations
// in the backing store, never read-modify-write on cached values.
type TrustStore interface {
	// Returns (nil, nil) if there is no record for the pair.
	GetMember(ctx context.Context, memberID, chatID int64) (*Member, error)
	// Creates or fully rewrites a member record.
	PutMember(ctx context.Context, m Member) error
	// Creates the record only if none exists for the pair, as a single atomic operation. Returns false, with no
	// error, if a record already existed; it is left untouched.
	CreateMember(ctx context.Context, m Member) (bool, error)
	IncrementMessageCount(ctx context.Context, memberID, chatID int64) error
	SetTrusted(ctx context.Context, memberID, chatID int64, trusted bool) error
	GetChatAggregate(ctx context.Context, chatID int64) (*ChatAggregate, error)
	IncrementBlockedCount(ctx context.Context, chatID int64) error
	IncrementGlobalBlockedCount(ctx context.Context) error
	GetGlobalBlockedCount(ctx context.Context) (int64, error)
	GetExcludedThreads(ctx context.Context, chatID int64) ([]int, error)
	SetExcludedThreads(ctx context.Context, chatID int64, threads []int) error
}

func dedupeThreads(in []int) []int {
	out := []int{}
	seen := make(map[int]bool, len(in))
	for _, t := range in {
		if !seen[t] {
			out = append(out, t)
			seen[t] = true
		}
	}
	return out
}
