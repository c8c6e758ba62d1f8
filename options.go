package rfb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option configures an RFBServer at construction time.
type Option func(*RFBServer)

// WithLogger overrides the server's structured logger. The default
// logs to stderr with no level filter, so Debug lines are written
// too; see logging.go.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *RFBServer) { s.log = logger }
}

// WithRegisterer registers this server's metrics (see metrics.go)
// against reg instead of a private per-server registry. Pass
// prometheus.DefaultRegisterer to expose them on the process-wide
// /metrics endpoint.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *RFBServer) { s.registerer = reg }
}
