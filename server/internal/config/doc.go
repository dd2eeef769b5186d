// Package config loads threadwork-server configuration from the `server:`
// and `log:` sections of a YAML file.
//
// Config fields:
//   - HTTPPort          port for the REST API, /metrics and WebSocket stream (default 8080)
//   - Auth.Mode         "apikey" or "none"
//   - Auth.KeyEnv       environment variable holding the expected API key
//   - Auth.Header       HTTP header carrying the key (default "X-API-Key")
//   - Snapshot.TTL      how long a page's latest report stays live (default 1h)
//   - Storage.Backend   "sqlite" or "memory" (default memory)
//   - Storage.Path      SQLite file for report history
//   - Storage.Retention how long history rows are kept (default 30 days)
//   - Alerts            budget rules and webhook targets
//   - Stream.Interval   WebSocket broadcast period (default 5s)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
