// Package services defines shared utilities consumed by the upload
// coordinator and the intake clients.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, ticket IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into transport, intake, protocol, and timeout outcomes.
//
// Use these helpers when wiring new intake calls so failure classification and
// observability stay uniform across the upload lifecycle.
package services
