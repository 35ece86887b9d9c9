package truststore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testTrustStoreBasics(t *testing.T, ts TrustStore) {
	assert := assert.New(t)
	ctx := context.Background()

	m, err := ts.GetMember(ctx, 123, 456)
	assert.NoError(err)
	assert.Nil(m)

	assert.ErrorIs(ts.IncrementMessageCount(ctx, 123, 456), ErrMemberNotFound)
	assert.ErrorIs(ts.SetTrusted(ctx, 123, 456, true), ErrMemberNotFound)

	joined := time.Date(2025, 11, 29, 12, 0, 0, 0, time.UTC)
	assert.NoError(ts.PutMember(ctx, Member{MemberID: 123, ChatID: 456, JoinTime: &joined}))
	assert.NoError(ts.PutMember(ctx, Member{MemberID: 777, ChatID: 456, Trusted: true}))

	m, err = ts.GetMember(ctx, 123, 456)
	assert.NoError(err)
	require.NotNil(t, m)
	assert.False(m.Trusted)
	assert.Equal(int64(0), m.MessageCount)
	require.NotNil(t, m.JoinTime)
	assert.True(joined.Equal(*m.JoinTime))

	assert.NoError(ts.IncrementMessageCount(ctx, 123, 456))
	assert.NoError(ts.IncrementMessageCount(ctx, 123, 456))
	assert.NoError(ts.SetTrusted(ctx, 123, 456, true))
	m, err = ts.GetMember(ctx, 123, 456)
	assert.NoError(err)
	require.NotNil(t, m)
	assert.True(m.Trusted)
	assert.Equal(int64(2), m.MessageCount)

	// record without a join time
	m, err = ts.GetMember(ctx, 777, 456)
	assert.NoError(err)
	require.NotNil(t, m)
	assert.True(m.Trusted)
	assert.Nil(m.JoinTime)

	// put is a full rewrite
	assert.NoError(ts.PutMember(ctx, Member{MemberID: 123, ChatID: 456, JoinTime: &joined}))
	m, err = ts.GetMember(ctx, 123, 456)
	assert.NoError(err)
	require.NotNil(t, m)
	assert.False(m.Trusted)
	assert.Equal(int64(0), m.MessageCount)

	// same member, other chat, is independent
	m, err = ts.GetMember(ctx, 123, 999)
	assert.NoError(err)
	assert.Nil(m)

	// create only applies when there is no record
	created, err := ts.CreateMember(ctx, Member{MemberID: 123, ChatID: 456, Trusted: true})
	assert.NoError(err)
	assert.False(created)
	m, err = ts.GetMember(ctx, 123, 456)
	assert.NoError(err)
	require.NotNil(t, m)
	assert.False(m.Trusted)
	require.NotNil(t, m.JoinTime)

	created, err = ts.CreateMember(ctx, Member{MemberID: 888, ChatID: 456, JoinTime: &joined})
	assert.NoError(err)
	assert.True(created)
	m, err = ts.GetMember(ctx, 888, 456)
	assert.NoError(err)
	require.NotNil(t, m)
	assert.False(m.Trusted)
	require.NotNil(t, m.JoinTime)
	assert.True(joined.Equal(*m.JoinTime))
}

func testTrustStoreAggregates(t *testing.T, ts TrustStore) {
	assert := assert.New(t)
	ctx := context.Background()

	agg, err := ts.GetChatAggregate(ctx, 456)
	assert.NoError(err)
	require.NotNil(t, agg)
	assert.Equal(int64(0), agg.BlockedCount)
	assert.Empty(agg.ExcludedThreads)

	c, err := ts.GetGlobalBlockedCount(ctx)
	assert.NoError(err)
	assert.Equal(int64(0), c)

	assert.NoError(ts.IncrementBlockedCount(ctx, 456))
	assert.NoError(ts.IncrementBlockedCount(ctx, 456))
	assert.NoError(ts.IncrementBlockedCount(ctx, 789))
	for i := 0; i < 3; i++ {
		assert.NoError(ts.IncrementGlobalBlockedCount(ctx))
	}
	assert.NoError(ts.PutMember(ctx, Member{MemberID: 1, ChatID: 456, Trusted: true}))
	assert.NoError(ts.PutMember(ctx, Member{MemberID: 2, ChatID: 456, Trusted: true}))
	assert.NoError(ts.PutMember(ctx, Member{MemberID: 1, ChatID: 789, Trusted: true}))

	assert.NoError(ts.SetExcludedThreads(ctx, 456, []int{42, 7, 42}))
	threads, err := ts.GetExcludedThreads(ctx, 456)
	assert.NoError(err)
	assert.Equal([]int{7, 42}, threads)

	agg, err = ts.GetChatAggregate(ctx, 456)
	assert.NoError(err)
	require.NotNil(t, agg)
	assert.Equal(int64(2), agg.BlockedCount)
	assert.Equal([]int{7, 42}, agg.ExcludedThreads)
	assert.Equal(int64(2), agg.KnownMembers)

	c, err = ts.GetGlobalBlockedCount(ctx)
	assert.NoError(err)
	assert.Equal(int64(3), c)

	// replacing with an empty set clears
	assert.NoError(ts.SetExcludedThreads(ctx, 456, nil))
	threads, err = ts.GetExcludedThreads(ctx, 456)
	assert.NoError(err)
	assert.Empty(threads)
}

func TestMemTrustStore(t *testing.T) {
	testTrustStoreBasics(t, NewMemTrustStore())
	testTrustStoreAggregates(t, NewMemTrustStore())
}

func testGormStore(t *testing.T) *GormTrustStore {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	// each sqlite connection would otherwise get its own in-memory database
	sqldb, err := db.DB()
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	ts, err := NewGormTrustStore(db)
	require.NoError(t, err)
	return ts
}

func TestGormTrustStore(t *testing.T) {
	testTrustStoreBasics(t, testGormStore(t))
	testTrustStoreAggregates(t, testGormStore(t))
}

func TestMemTrustStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	ts := NewMemTrustStore()
	assert.NoError(ts.PutMember(ctx, Member{MemberID: 1, ChatID: 2, Trusted: true}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(ts.IncrementMessageCount(ctx, 1, 2))
				assert.NoError(ts.IncrementBlockedCount(ctx, 2))
				assert.NoError(ts.IncrementGlobalBlockedCount(ctx))
			}
		}()
	}
	wg.Wait()

	m, err := ts.GetMember(ctx, 1, 2)
	assert.NoError(err)
	require.NotNil(t, m)
	assert.Equal(int64(200), m.MessageCount)

	agg, err := ts.GetChatAggregate(ctx, 2)
	assert.NoError(err)
	assert.Equal(int64(200), agg.BlockedCount)

	c, err := ts.GetGlobalBlockedCount(ctx)
	assert.NoError(err)
	assert.Equal(int64(200), c)
}

func TestMemTrustStoreCreateConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	ts := NewMemTrustStore()

	var mu sync.Mutex
	created := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := ts.CreateMember(ctx, Member{MemberID: 1, ChatID: 2, MessageCount: int64(i)})
			assert.NoError(err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(1, created)
}

func TestRedisTrustStoreBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")

	ts, err := NewRedisTrustStore("redis://localhost:6379/0")
	if err != nil {
		t.Fail()
	}
	testTrustStoreBasics(t, ts)
}
