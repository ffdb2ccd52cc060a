/*
Package log provides structured logging built on zerolog.

A single global Logger is configured once via Init and every component
derives a child logger from it with WithComponent, WithPeerID, or WithDB
so that log lines carry consistent, queryable context fields.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	syncLog := log.WithComponent("sync")
	syncLog.Info().Str("peer_id", peerID).Msg("anti-entropy round started")

JSONOutput selects JSON records for production and a console writer for
local development. Fatal logs and exits; everything else is non-fatal.
*/
package log
