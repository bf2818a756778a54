package offline

import (
	"context"
	"encoding/json"
	"fmt"
)

// Put encodes v as JSON and caches it under key.
func Put[T any](ctx context.Context, c *Cache, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrEncode, key, err)
	}
	return c.CacheData(ctx, key, data)
}

// Get decodes the fresh value cached under key into T. The bool is false when
// the key is absent or expired; the error is set only when the cached JSON
// does not decode into T.
func Get[T any](c *Cache, key string) (T, bool, error) {
	var v T

	data, ok := c.GetCachedData(key)
	if !ok {
		return v, false, nil
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode %q: %w", key, err)
	}

	return v, true, nil
}
