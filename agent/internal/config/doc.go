// Package config loads and watches the agent configuration file (agent.yaml).
//
// Top-level types:
//   - Config{Settings, Scoring, LongTasks, Runner, Watch, Ship, Log}
//   - Settings: throttling_method (devtools|simulate|provided),
//     throttling.cpu_slowdown_multiplier, gather_mode
//     (navigation|timespan|snapshot)
//   - ScoringConfig: p10_ms, median_ms control points of the score curve
//   - ShipConfig: server_endpoint, interval, timeout, buffer_size, auth;
//     AuthConfig.Key() resolves the API key from an environment variable
//
// Load(path) reads the YAML file, applies defaults (simulate ×4, navigation,
// 2017/4000 ms, 50 ms long tasks, 15s ship interval, buffer 100), then
// validates enums and ranges. LoadOrDefault("") skips the file entirely.
//
// Watch(ctx, path, prev, onReload) follows the file's directory with fsnotify,
// debounces each save, and reports the new Config with the keys that changed.
// Keys that only apply at startup (watch, ship, log) are flagged as Restart.
package config
