package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Supervisor probes every registered connection on a fixed interval and
// reaps the ones that failed to answer the previous probe. Each tick marks
// live connections as suspect before pinging them, so a connection gets one
// full interval to respond before it is torn down.
type Supervisor struct {
	registry *Registry
	bc       *Broadcaster
	interval time.Duration

	stop   sync.Once
	done   chan struct{}
	logger zerolog.Logger
}

// NewSupervisor creates a heartbeat supervisor over the registry.
func NewSupervisor(registry *Registry, bc *Broadcaster, interval time.Duration, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		registry: registry,
		bc:       bc,
		interval: interval,
		done:     make(chan struct{}),
		logger:   logger.With().Str("component", "heartbeat").Logger(),
	}
}

// Run starts the probe loop. Call in a goroutine.
func (s *Supervisor) Run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// Stop halts the probe loop.
func (s *Supervisor) Stop() {
	s.stop.Do(func() { close(s.done) })
}

// sweep reaps connections still suspect from the previous tick, then marks
// the rest suspect and pings them. A ping that cannot be written is left
// suspect and reaped on the next tick, same as a missing pong.
func (s *Supervisor) sweep() {
	for _, c := range s.registry.All() {
		if !c.Alive() {
			s.logger.Info().
				Str("conn_id", c.ID()).
				Str("user_id", c.UserID()).
				Msg("heartbeat missed, reaping connection")
			s.bc.Drop(c)
			continue
		}
		c.Suspect()
		if err := c.Ping(); err != nil {
			s.logger.Debug().Err(err).Str("conn_id", c.ID()).Msg("ping write failed")
		}
	}
}
