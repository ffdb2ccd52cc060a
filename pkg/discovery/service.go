package discovery

import (
	"context"
	"time"
)

// Service runs the announce loop and the eviction sweep for an Announcer
// and Table, started and stopped together with the node.
type Service struct {
	announcer *Announcer
	table     *Table
}

// NewService constructs a Service over announcer and table.
func NewService(announcer *Announcer, table *Table) *Service {
	return &Service{announcer: announcer, table: table}
}

// Run blocks, broadcasting an announcement every announceEvery (after an
// initial announceWarmup delay) and sweeping the peer table for stale
// entries every evictionSweep, until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	warmup := time.NewTimer(announceWarmup)
	defer warmup.Stop()

	select {
	case <-warmup.C:
	case <-ctx.Done():
		return
	}

	announceTicker := time.NewTicker(announceEvery)
	defer announceTicker.Stop()
	evictTicker := time.NewTicker(evictionSweep)
	defer evictTicker.Stop()

	_ = s.announcer.Announce(time.Now())

	for {
		select {
		case <-announceTicker.C:
			_ = s.announcer.Announce(time.Now())
		case <-evictTicker.C:
			s.table.EvictStale()
		case <-ctx.Done():
			return
		}
	}
}
