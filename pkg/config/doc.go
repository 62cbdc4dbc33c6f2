// Package config loads the agent configuration.
//
// Files are YAML (.yaml, .yml) or TOML (.toml) with the same keys. Values not
// present in the file keep their defaults, so a file may set only what it
// changes. Durations are Go duration strings ("30s", "1m").
package config
