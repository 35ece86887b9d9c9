// Persistent string flags attached to a key, such as a (chat, member) pair.
//
// The moderation engine uses flags to record moderation history which must survive restarts, for example that
// a member was already banned and counted, or was warned about language.
package flagstore

import (
	"context"
	"sort"
)

type FlagStore interface {
	// Returns flags in sorted order, or an empty slice if none.
	Get(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key string, flags []string) error
	// Adds a single flag, atomically reporting whether it was newly added (false if it was already set).
	AddNew(ctx context.Context, key, flag string) (bool, error)
	// Does not error if flags are not in the set.
	Remove(ctx context.Context, key string, flags []string) error
}

func sortedFlags(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
