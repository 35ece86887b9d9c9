package countstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodBucket(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2025, 3, 9, 23, 41, 0, 0, time.FixedZone("IST", 2*60*60))
	assert.Equal("ban/-100123", periodBucketAt("ban", "-100123", PeriodTotal, now))
	assert.Equal("ban/-100123/2025-03-09", periodBucketAt("ban", "-100123", PeriodDay, now))
	assert.Equal("ban/-100123/2025-03-09T21", periodBucketAt("ban", "-100123", PeriodHour, now))
	assert.Equal("ban/-100123", periodBucketAt("ban", "-100123", "fortnight", now))
}

func TestMemCountStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	c, err := cs.GetCount(ctx, "ban", "-100123", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, "ban", "-100123"))
	assert.NoError(cs.Increment(ctx, "ban", "-100123"))

	for _, period := range Periods {
		c, err = cs.GetCount(ctx, "ban", "-100123", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	c, err = cs.GetCount(ctx, "ban", "-100999", PeriodDay)
	assert.NoError(err)
	assert.Equal(0, c)

	c, err = cs.GetCountDistinct(ctx, "warned", "-100123", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.IncrementDistinct(ctx, "warned", "-100123", "42"))
	assert.NoError(cs.IncrementDistinct(ctx, "warned", "-100123", "42"))
	c, err = cs.GetCountDistinct(ctx, "warned", "-100123", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	assert.NoError(cs.IncrementDistinct(ctx, "warned", "-100123", "43"))
	assert.NoError(cs.IncrementDistinct(ctx, "warned", "-100123", "44"))

	for _, period := range Periods {
		c, err = cs.GetCountDistinct(ctx, "warned", "-100123", period)
		assert.NoError(err)
		assert.Equal(3, c)
	}
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	// writers and readers interleaved; run with -race
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.NoError(cs.Increment(ctx, "ban", "-100123"))
				assert.NoError(cs.IncrementDistinct(ctx, "banned", "-100123", fmt.Sprint(i)))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := cs.GetCount(ctx, "ban", "-100123", PeriodDay)
				assert.NoError(err)
			}
		}()
	}
	wg.Wait()

	c, err := cs.GetCount(ctx, "ban", "-100123", PeriodTotal)
	assert.NoError(err)
	assert.Equal(40, c)
	c, err = cs.GetCountDistinct(ctx, "banned", "-100123", PeriodTotal)
	assert.NoError(err)
	assert.Equal(4, c)
}

func TestRedisCountStoreBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	cs, err := NewRedisCountStore("redis://localhost:6379/0")
	if err != nil {
		t.Fail()
	}

	before, err := cs.GetCount(ctx, "test-ban", "-100123", PeriodHour)
	assert.NoError(err)
	assert.NoError(cs.Increment(ctx, "test-ban", "-100123"))
	after, err := cs.GetCount(ctx, "test-ban", "-100123", PeriodHour)
	assert.NoError(err)
	assert.Equal(before+1, after)
}
