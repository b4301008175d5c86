package server

import (
	"github.com/rs/zerolog"

	"github.com/MDx-Vision/nicehr-realtime/config"
	"github.com/MDx-Vision/nicehr-realtime/src/hub"
	"github.com/MDx-Vision/nicehr-realtime/src/notify"
	"github.com/MDx-Vision/nicehr-realtime/src/session"
)

// Server ties the handshake, connection handling, and HTTP surface
// together. One instance serves all connections.
type Server struct {
	cfg      *config.Config
	resolver *session.Resolver
	registry *hub.Registry
	bc       *hub.Broadcaster
	agg      *notify.Aggregator
	logger   zerolog.Logger
}

// New creates the server over already-constructed components.
func New(cfg *config.Config, resolver *session.Resolver, registry *hub.Registry, bc *hub.Broadcaster, agg *notify.Aggregator, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		resolver: resolver,
		registry: registry,
		bc:       bc,
		agg:      agg,
		logger:   logger.With().Str("component", "server").Logger(),
	}
}
