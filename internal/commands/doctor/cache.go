package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/hay-kot/shelter/internal/core/offline"
)

// Purger is the part of the offline cache the expired-entry check needs.
type Purger interface {
	Entries() []offline.EntryInfo
	Purge(ctx context.Context, pattern string) (int, error)
}

// ExpiredCheck reports cache entries past the freshness window. They are
// unreadable but still occupy storage.
type ExpiredCheck struct {
	cache Purger
	fix   bool
}

// NewExpiredCheck creates a new expired entry check.
// If fix is true, expired entries are purged.
func NewExpiredCheck(cache Purger, fix bool) *ExpiredCheck {
	return &ExpiredCheck{cache: cache, fix: fix}
}

func (c *ExpiredCheck) Name() string {
	return "Expired Cache Entries"
}

func (c *ExpiredCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	var expired []offline.EntryInfo
	for _, e := range c.cache.Entries() {
		if !e.Fresh {
			expired = append(expired, e)
		}
	}

	if len(expired) == 0 {
		result.Items = append(result.Items, CheckItem{
			Label:  "No expired entries",
			Status: StatusPass,
		})
		return result
	}

	if c.fix {
		n, err := c.cache.Purge(ctx, "")
		if err != nil {
			result.Items = append(result.Items, CheckItem{
				Label:  "Purge",
				Status: StatusFail,
				Detail: fmt.Sprintf("failed to purge: %v", err),
			})
			return result
		}
		result.Items = append(result.Items, CheckItem{
			Label:  "Purge",
			Status: StatusPass,
			Detail: fmt.Sprintf("removed %d expired entr(ies)", n),
		})
		return result
	}

	for _, e := range expired {
		result.Items = append(result.Items, CheckItem{
			Label:   e.Key,
			Status:  StatusWarn,
			Detail:  "expired " + e.Entry.WrittenAt().Add(offline.FreshnessWindow).Format(time.DateTime),
			Fixable: true,
		})
	}

	return result
}
