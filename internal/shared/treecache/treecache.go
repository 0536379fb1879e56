package treecache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// The subtree cache is invalidated by bumping a generation counter instead of
// deleting keys: every mutation anywhere in the tree can affect an unknown set
// of cached subtrees, so stale entries are simply left to expire.
const versionKey = "departments:subtree:ver"

// Version returns the current cache generation, 0 when unset or on error.
func Version(ctx context.Context, rdb *redis.Client) int64 {
	if rdb == nil {
		return 0
	}
	v, err := rdb.Get(ctx, versionKey).Int64()
	if err != nil {
		return 0
	}
	return v
}

// Invalidate bumps the generation, orphaning every cached subtree at once.
func Invalidate(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return nil
	}
	return rdb.Incr(ctx, versionKey).Err()
}

func SubtreeKey(version int64, departmentID uint, depth int, includeEmployees bool) string {
	return fmt.Sprintf("departments:subtree:v%d:%d:%d:%t", version, departmentID, depth, includeEmployees)
}
