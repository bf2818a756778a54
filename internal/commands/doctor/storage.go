package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/hay-kot/shelter/internal/store/sqlstore"
)

// Pinger checks that storage answers.
type Pinger interface {
	CheckReadiness(ctx context.Context) error
}

// StorageCheck verifies the cache backend is reachable and, for SQL
// backends, reports table statistics.
type StorageCheck struct {
	backend string
	ready   Pinger
	storage any
}

// NewStorageCheck creates a new storage check. storage is inspected for SQL
// statistics when it is a *sqlstore.Store.
func NewStorageCheck(backend string, ready Pinger, storage any) *StorageCheck {
	return &StorageCheck{backend: backend, ready: ready, storage: storage}
}

func (c *StorageCheck) Name() string {
	return "Storage"
}

func (c *StorageCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.ready.CheckReadiness(ctx); err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  c.backend,
			Status: StatusFail,
			Detail: err.Error(),
		})
		return result
	}

	result.Items = append(result.Items, CheckItem{
		Label:  c.backend,
		Status: StatusPass,
		Detail: "reachable",
	})

	store, ok := c.storage.(*sqlstore.Store)
	if !ok {
		return result
	}

	status, err := store.Status(ctx)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Table status",
			Status: StatusWarn,
			Detail: err.Error(),
		})
		return result
	}

	detail := fmt.Sprintf("%d row(s)", status.Rows)
	if !status.LastUpdated.IsZero() {
		detail += ", last write " + status.LastUpdated.Format(time.DateTime)
	}
	result.Items = append(result.Items, CheckItem{
		Label:  "Table status",
		Status: StatusPass,
		Detail: detail,
	})

	return result
}
