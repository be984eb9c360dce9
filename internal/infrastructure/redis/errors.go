package redis

import "errors"

// Sentinel errors for Redis operations.
var (
	// ErrDisabled indicates the Redis cache is disabled in config.
	ErrDisabled = errors.New("redis: disabled in configuration")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("redis: connection failed")

	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("redis: not connected")
)
