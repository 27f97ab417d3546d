package core

import (
	"errors"
	"time"
)

// Defaults applied by NewServer to zero Config fields.
const (
	DefaultWorkers     = 32
	DefaultMaxBodySize = 10 << 20
)

const (
	notFoundMessage    = "API endpoint not found"
	rateLimitedMessage = "Too many requests"
	internalMessage    = "Internal server error"

	maxAcceptDelay = time.Second
)

// Error definitions
var (
	// ErrServerClosed is returned by Serve after Shutdown.
	ErrServerClosed = errors.New("server closed")
	// ErrServing is returned when Serve is called twice.
	ErrServing = errors.New("server already serving")
)
