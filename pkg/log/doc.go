// Package log provides structured logging for minotaur using zerolog.
//
// Init configures the global Logger from a Config (level, JSON vs console
// output, destination writer). Component loggers (WithSession, WithProvider,
// WithStage) attach a single identifying field so pipeline output can be
// filtered or grepped per session, credential provider, or run stage without
// threading a *zerolog.Logger through every function signature.
package log
