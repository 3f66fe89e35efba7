// Package log provides structured logging for warren-ledger using zerolog:
// a global logger configured via Init, component-scoped child loggers, and
// helpers for the identifiers the ledger deals with (database root,
// entry ID, peer address).
package log
