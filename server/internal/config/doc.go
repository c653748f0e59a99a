// Package config loads the server-side configuration from the `server:`
// section of config.yaml (the `analyzer:` key is ignored by the server
// binary).
//
// Config fields:
//   - HTTPPort    — port for the REST API and WebSocket hub (default 8080)
//   - DBPath      — SQLite file backing the durable result log
//   - Auth.Mode   — "apikey" or "none"
//   - Auth.KeyEnv — environment variable holding the expected API key
//   - Auth.Header — HTTP header name (default "x-api-key")
//   - Stream      — WebSocket broadcast interval and feed depth
//   - Notify      — critical-result cooldown and webhook targets
//   - Catalog     — the reference catalog, one entry per test code
//
// Load(path) applies defaults before unmarshalling, then validates. An
// omitted catalog falls back to the built-in entries; a present one replaces
// them entirely.
package config
