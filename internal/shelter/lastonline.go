package shelter

import (
	"context"
	"time"

	"github.com/hay-kot/shelter/internal/core/offline"
)

// LastOnlineKey is the cache key holding when connectivity was last
// confirmed. Like any entry it is only returned for a day.
const LastOnlineKey = "shelter/last-online"

// LastOnline records a confirmed online state.
type LastOnline struct {
	At    time.Time `json:"at"`
	Probe string    `json:"probe"`
}

// RecordOnline stores that the host is online now.
func (s *Service) RecordOnline(ctx context.Context) error {
	return offline.Put(ctx, s.cache, LastOnlineKey, LastOnline{
		At:    s.clock.Now().UTC(),
		Probe: s.cfg.Connectivity.Probe,
	})
}

// LastOnline returns the last recorded online time. The bool is false when
// nothing was recorded in the freshness window.
func (s *Service) LastOnline() (LastOnline, bool, error) {
	return offline.Get[LastOnline](s.cache, LastOnlineKey)
}

func (s *Service) recordOnline(ctx context.Context) {
	if err := s.RecordOnline(ctx); err != nil {
		s.log.Warn().Err(err).Msg("last online time not recorded")
	}
}
