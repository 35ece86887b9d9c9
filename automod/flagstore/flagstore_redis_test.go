package flagstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedisFlagStoreBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	fs, err := NewRedisFlagStore("redis://localhost:6379/0")
	if err != nil {
		t.Fail()
	}

	l, err := fs.Get(ctx, "test/1")
	assert.NoError(err)
	assert.Empty(l)

	assert.NoError(fs.Add(ctx, "test/1", []string{"banned", "scam-ban"}))
	assert.NoError(fs.Add(ctx, "test/1", []string{"banned", "language-warning"}))
	l, err = fs.Get(ctx, "test/1")
	assert.NoError(err)
	assert.Equal([]string{"banned", "language-warning", "scam-ban"}, l)

	assert.NoError(fs.Remove(ctx, "test/1", []string{"banned", "scam-ban", "unknown"}))
	l, err = fs.Get(ctx, "test/1")
	assert.NoError(err)
	assert.Equal([]string{"language-warning"}, l)
	assert.NoError(fs.Remove(ctx, "test/1", []string{"language-warning"}))

	added, err := fs.AddNew(ctx, "test/1", "banned")
	assert.NoError(err)
	assert.True(added)
	added, err = fs.AddNew(ctx, "test/1", "banned")
	assert.NoError(err)
	assert.False(added)
	assert.NoError(fs.Remove(ctx, "test/1", []string{"banned"}))
}
