package truststore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisTrustPrefix string = "trust/"

// Member records are redis hashes with these fields. A missing "join" field means no join time.
const (
	fieldJoin    = "join"
	fieldTrusted = "trusted"
	fieldCount   = "count"
)

// Mutates a single hash field, but only if the member hash already exists. Returns nil when it does not.
var hsetIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return nil
`)

var hincrIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
end
return nil
`)

// Writes a full member hash, and adds the member to the chat's member set, but only if the hash does not already
// exist. KEYS: member hash, chat member set. ARGV: member ID, trusted, count, join (empty for none).
var createIfAbsent = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "trusted", ARGV[2], "count", ARGV[3])
if ARGV[4] ~= "" then
	redis.call("HSET", KEYS[1], "join", ARGV[4])
end
redis.call("SADD", KEYS[2], ARGV[1])
return 1
`)

type RedisTrustStore struct {
	Client *redis.Client
}

var _ TrustStore = (*RedisTrustStore)(nil)

func NewRedisTrustStore(redisURL string) (*RedisTrustStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	rts := RedisTrustStore{
		Client: rdb,
	}
	return &rts, nil
}

func memberKeyRedis(memberID, chatID int64) string {
	return fmt.Sprintf("%smember/%d/%d", redisTrustPrefix, chatID, memberID)
}

func chatMembersKey(chatID int64) string {
	return fmt.Sprintf("%schat/%d/members", redisTrustPrefix, chatID)
}

func chatBlockedKey(chatID int64) string {
	return fmt.Sprintf("%schat/%d/blocked", redisTrustPrefix, chatID)
}

func chatThreadsKey(chatID int64) string {
	return fmt.Sprintf("%schat/%d/threads", redisTrustPrefix, chatID)
}

var globalBlockedKeyRedis = redisTrustPrefix + "blocked"

func (s *RedisTrustStore) GetMember(ctx context.Context, memberID, chatID int64) (*Member, error) {
	vals, err := s.Client.HGetAll(ctx, memberKeyRedis(memberID, chatID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	m := Member{
		MemberID: memberID,
		ChatID:   chatID,
		Trusted:  vals[fieldTrusted] == "1",
	}
	if raw, ok := vals[fieldCount]; ok {
		m.MessageCount, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing member message count: %w", err)
		}
	}
	if raw, ok := vals[fieldJoin]; ok && raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing member join time: %w", err)
		}
		jt := time.UnixMilli(ms).UTC()
		m.JoinTime = &jt
	}
	return &m, nil
}

func (s *RedisTrustStore) PutMember(ctx context.Context, m Member) error {
	key := memberKeyRedis(m.MemberID, m.ChatID)
	trusted := "0"
	if m.Trusted {
		trusted = "1"
	}

	// rewrite the whole hash in a single transaction
	multi := s.Client.TxPipeline()
	multi.Del(ctx, key)
	multi.HSet(ctx, key, fieldTrusted, trusted, fieldCount, m.MessageCount)
	if m.JoinTime != nil {
		multi.HSet(ctx, key, fieldJoin, m.JoinTime.UnixMilli())
	}
	multi.SAdd(ctx, chatMembersKey(m.ChatID), m.MemberID)
	_, err := multi.Exec(ctx)
	return err
}

func (s *RedisTrustStore) CreateMember(ctx context.Context, m Member) (bool, error) {
	trusted := "0"
	if m.Trusted {
		trusted = "1"
	}
	join := ""
	if m.JoinTime != nil {
		join = strconv.FormatInt(m.JoinTime.UnixMilli(), 10)
	}
	keys := []string{memberKeyRedis(m.MemberID, m.ChatID), chatMembersKey(m.ChatID)}
	created, err := createIfAbsent.Run(ctx, s.Client, keys, m.MemberID, trusted, m.MessageCount, join).Int()
	if err != nil {
		return false, err
	}
	return created == 1, nil
}

func (s *RedisTrustStore) IncrementMessageCount(ctx context.Context, memberID, chatID int64) error {
	err := hincrIfExists.Run(ctx, s.Client, []string{memberKeyRedis(memberID, chatID)}, fieldCount).Err()
	if err == redis.Nil {
		return ErrMemberNotFound
	}
	return err
}

func (s *RedisTrustStore) SetTrusted(ctx context.Context, memberID, chatID int64, trusted bool) error {
	val := "0"
	if trusted {
		val = "1"
	}
	err := hsetIfExists.Run(ctx, s.Client, []string{memberKeyRedis(memberID, chatID)}, fieldTrusted, val).Err()
	if err == redis.Nil {
		return ErrMemberNotFound
	}
	return err
}

func (s *RedisTrustStore) GetChatAggregate(ctx context.Context, chatID int64) (*ChatAggregate, error) {
	agg := ChatAggregate{ChatID: chatID}

	blocked, err := s.Client.Get(ctx, chatBlockedKey(chatID)).Int64()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	agg.BlockedCount = blocked

	agg.KnownMembers, err = s.Client.SCard(ctx, chatMembersKey(chatID)).Result()
	if err != nil {
		return nil, err
	}

	agg.ExcludedThreads, err = s.GetExcludedThreads(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (s *RedisTrustStore) IncrementBlockedCount(ctx context.Context, chatID int64) error {
	return s.Client.Incr(ctx, chatBlockedKey(chatID)).Err()
}

func (s *RedisTrustStore) IncrementGlobalBlockedCount(ctx context.Context) error {
	return s.Client.Incr(ctx, globalBlockedKeyRedis).Err()
}

func (s *RedisTrustStore) GetGlobalBlockedCount(ctx context.Context) (int64, error) {
	c, err := s.Client.Get(ctx, globalBlockedKeyRedis).Int64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return c, nil
}

func (s *RedisTrustStore) GetExcludedThreads(ctx context.Context, chatID int64) ([]int, error) {
	raw, err := s.Client.SMembers(ctx, chatThreadsKey(chatID)).Result()
	if err != nil {
		return nil, err
	}
	threads := make([]int, 0, len(raw))
	for _, r := range raw {
		t, err := strconv.Atoi(r)
		if err != nil {
			return nil, fmt.Errorf("parsing excluded thread id: %w", err)
		}
		threads = append(threads, t)
	}
	sort.Ints(threads)
	return threads, nil
}

func (s *RedisTrustStore) SetExcludedThreads(ctx context.Context, chatID int64, threads []int) error {
	key := chatThreadsKey(chatID)
	multi := s.Client.TxPipeline()
	multi.Del(ctx, key)
	if len(threads) > 0 {
		members := make([]any, 0, len(threads))
		for _, t := range dedupeThreads(threads) {
			members = append(members, t)
		}
		multi.SAdd(ctx, key, members...)
	}
	_, err := multi.Exec(ctx)
	return err
}
