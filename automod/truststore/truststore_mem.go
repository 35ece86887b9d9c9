package truststore

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

type memberKey struct {
	MemberID int64
	ChatID   int64
}

type memChat struct {
	BlockedCount    int64
	ExcludedThreads []int
}

// In-process TrustStore, mostly for tests and single-process development setups. Per-key updates go through
// xsync's Compute, so concurrent increments on the same key are not lost.
type MemTrustStore struct {
	Members *xsync.MapOf[memberKey, Member]
	Chats   *xsync.MapOf[int64, memChat]
	blocked *atomic.Int64
}

var _ TrustStore = (*MemTrustStore)(nil)

func NewMemTrustStore() *MemTrustStore {
	return &MemTrustStore{
		Members: xsync.NewMapOf[memberKey, Member](),
		Chats:   xsync.NewMapOf[int64, memChat](),
		blocked: &atomic.Int64{},
	}
}

func (s *MemTrustStore) GetMember(ctx context.Context, memberID, chatID int64) (*Member, error) {
	m, ok := s.Members.Load(memberKey{MemberID: memberID, ChatID: chatID})
	if !ok {
		return nil, nil
	}
	if m.JoinTime != nil {
		jt := *m.JoinTime
		m.JoinTime = &jt
	}
	return &m, nil
}

func (s *MemTrustStore) PutMember(ctx context.Context, m Member) error {
	if m.JoinTime != nil {
		jt := *m.JoinTime
		m.JoinTime = &jt
	}
	s.Members.Store(memberKey{MemberID: m.MemberID, ChatID: m.ChatID}, m)
	return nil
}

func (s *MemTrustStore) CreateMember(ctx context.Context, m Member) (bool, error) {
	if m.JoinTime != nil {
		jt := *m.JoinTime
		m.JoinTime = &jt
	}
	_, loaded := s.Members.LoadOrStore(memberKey{MemberID: m.MemberID, ChatID: m.ChatID}, m)
	return !loaded, nil
}

func (s *MemTrustStore) updateMember(memberID, chatID int64, fn func(m *Member)) error {
	found := false
	s.Members.Compute(memberKey{MemberID: memberID, ChatID: chatID}, func(old Member, loaded bool) (Member, bool) {
		if !loaded {
			return old, true
		}
		found = true
		fn(&old)
		return old, false
	})
	if !found {
		return ErrMemberNotFound
	}
	return nil
}

func (s *MemTrustStore) IncrementMessageCount(ctx context.Context, memberID, chatID int64) error {
	return s.updateMember(memberID, chatID, func(m *Member) {
		m.MessageCount++
	})
}

func (s *MemTrustStore) SetTrusted(ctx context.Context, memberID, chatID int64, trusted bool) error {
	return s.updateMember(memberID, chatID, func(m *Member) {
		m.Trusted = trusted
	})
}

func (s *MemTrustStore) GetChatAggregate(ctx context.Context, chatID int64) (*ChatAggregate, error) {
	agg := ChatAggregate{
		ChatID:          chatID,
		ExcludedThreads: []int{},
	}
	if c, ok := s.Chats.Load(chatID); ok {
		agg.BlockedCount = c.BlockedCount
		agg.ExcludedThreads = append(agg.ExcludedThreads, c.ExcludedThreads...)
	}
	s.Members.Range(func(k memberKey, _ Member) bool {
		if k.ChatID == chatID {
			agg.KnownMembers++
		}
		return true
	})
	return &agg, nil
}

func (s *MemTrustStore) IncrementBlockedCount(ctx context.Context, chatID int64) error {
	s.Chats.Compute(chatID, func(old memChat, loaded bool) (memChat, bool) {
		old.BlockedCount++
		return old, false
	})
	return nil
}

func (s *MemTrustStore) IncrementGlobalBlockedCount(ctx context.Context) error {
	s.blocked.Add(1)
	return nil
}

func (s *MemTrustStore) GetGlobalBlockedCount(ctx context.Context) (int64, error) {
	return s.blocked.Load(), nil
}

func (s *MemTrustStore) GetExcludedThreads(ctx context.Context, chatID int64) ([]int, error) {
	c, ok := s.Chats.Load(chatID)
	if !ok {
		return []int{}, nil
	}
	return append([]int{}, c.ExcludedThreads...), nil
}

func (s *MemTrustStore) SetExcludedThreads(ctx context.Context, chatID int64, threads []int) error {
	threads = dedupeThreads(threads)
	sort.Ints(threads)
	s.Chats.Compute(chatID, func(old memChat, loaded bool) (memChat, bool) {
		old.ExcludedThreads = threads
		return old, false
	})
	return nil
}
