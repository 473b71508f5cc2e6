// Package infra groups the adapters behind the core interfaces: audit
// stores, metrics sinks, MQTT event publishing and bid intake, webhooks,
// structured logging and Sentry monitoring. Backends register themselves
// with the core factories from their init functions.
package infra
