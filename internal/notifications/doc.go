// Package notifications delivers job-lifecycle events via pluggable
// notifiers.
//
// The default implementation publishes to ntfy using the topic configured
// in config.toml and gracefully degrades to a no-op when no topic is
// configured. Enumerated event types cover the major lifecycle milestones
// (job created, stage completed/failed, job reclaimed) so stage handlers
// and the reclaimer emit consistent messages without duplicating HTTP
// glue.
//
// Extend this package if you need alternative transports; all workflow
// code depends only on the simple Service interface.
package notifications
