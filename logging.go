package rfb

import (
	"os"

	"github.com/rs/zerolog"
)

// defaultLogger is the base logger: a colourless console writer on
// stderr with a timestamp and component=rfb, and no level filter.
// Per-connection lines (connect, disconnect, exclusive takeover, and
// the error that ends a connection) carry conn_id/remote_addr fields
// set by callers via connLogger; handshake transitions are not logged.
func defaultLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
		With().
		Timestamp().
		Str("component", "rfb").
		Logger()
}

// connLogger returns a child logger tagged with this connection's
// identity, used for every log line emitted while servicing it.
func connLogger(base zerolog.Logger, id connID, remoteAddr string) zerolog.Logger {
	return base.With().
		Uint64("conn_id", uint64(id)).
		Str("remote_addr", remoteAddr).
		Logger()
}
