package config

import "errors"

var (
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrNotWatchable is returned by Watch when no config file was read.
	ErrNotWatchable = errors.New("config: no config file to watch")

	ErrMissingEnv            = errors.New("config: missing environment variable")
	ErrUnknownSecretProvider = errors.New("config: unknown secret provider")
)
