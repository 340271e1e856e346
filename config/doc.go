// Package config loads rendercache configuration with viper.
//
// Values come from, in increasing precedence, built-in defaults, a YAML
// file and RENDERCACHE_ environment variables (RENDERCACHE_STORE_STRIPES for
// store.stripes). Every key has a default so that environment overrides apply
// even without a file. Watch reloads the file on change; callers use it to
// swap cache-life profiles without a restart.
package config
