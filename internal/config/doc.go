// Package config loads, normalizes, and validates jobforge configuration
// data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// JOBFORGE_NTFY_TOPIC. The Config type centralizes every knob the daemon
// and CLI need: storage layout, pipeline stage ordering and per-stage
// timing, reclaim scan interval, the derived index location, logging, and
// notifications.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
