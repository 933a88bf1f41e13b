// Package config loads, normalizes, and validates upscan configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// UPSCAN_INITIATE_URL. The Config type centralizes the intake endpoints, the
// confirmation strategy, the host form layout, and the draft location so the
// coordinator and CLI discover every knob in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical strategy names, and clear validation errors.
package config
