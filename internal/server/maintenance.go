package server

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// RunMaintenance purges expired request-cache entries and idle sessions.
func (s *Server) RunMaintenance(ctx context.Context) (evicted, expired int) {
	if s.cache != nil {
		evicted = s.cache.Cleanup(ctx)
	}
	expired = s.sessions.Expire()

	s.logger.Debug().
		Int("evicted", evicted).
		Int("sessions_expired", expired).
		Msg("Maintenance run complete")
	return evicted, expired
}

// StartMaintenance schedules RunMaintenance on a standard cron spec and starts
// the scheduler. Stop the returned scheduler on shutdown.
func (s *Server) StartMaintenance(schedule string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { s.RunMaintenance(context.Background()) }); err != nil {
		return nil, fmt.Errorf("register maintenance job %q: %w", schedule, err)
	}
	c.Start()
	s.logger.Info().Str("schedule", schedule).Msg("Maintenance scheduled")
	return c, nil
}
