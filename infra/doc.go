// Package infra contains technical adapters such as the MQTT client, state
// stores, Sentry monitoring and metrics exporters. These packages should
// depend only on the interfaces defined in the core packages.
package infra
