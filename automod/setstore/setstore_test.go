package setstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemSetStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	ss := NewMemSetStore()

	ok, err := ss.InSet(ctx, FlaggedLanguages, "ru")
	assert.NoError(err)
	assert.False(ok)

	ss.Add(FlaggedLanguages, " RU ", "", "be")
	ok, err = ss.InSet(ctx, FlaggedLanguages, "ru")
	assert.NoError(err)
	assert.True(ok)
	ok, err = ss.InSet(ctx, FlaggedLanguages, "uk")
	assert.NoError(err)
	assert.False(ok)
	ok, err = ss.InSet(ctx, FlaggedLanguages, "")
	assert.NoError(err)
	assert.False(ok)
}

func TestMemSetStoreLoadJSON(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	p := filepath.Join(t.TempDir(), "sets.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"flagged-languages": ["ru", "BE"], "other": ["x"]}`), 0644))

	ss := NewMemSetStore()
	ss.Add(FlaggedLanguages, "kk")
	require.NoError(t, ss.LoadFromFileJSON(p))

	ok, err := ss.InSet(ctx, FlaggedLanguages, "be")
	assert.NoError(err)
	assert.True(ok)
	// replaced, not merged
	ok, err = ss.InSet(ctx, FlaggedLanguages, "kk")
	assert.NoError(err)
	assert.False(ok)
	ok, err = ss.InSet(ctx, "other", "x")
	assert.NoError(err)
	assert.True(ok)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`["ru"]`), 0644))
	assert.Error(ss.LoadFromFileJSON(bad))
	assert.Error(ss.LoadFromFileJSON(filepath.Join(t.TempDir(), "missing.json")))
}
