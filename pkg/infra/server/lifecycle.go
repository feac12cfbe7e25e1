// Package server runs the process's servers and closes its resources on
// shutdown.
package server

import "context"

// Lifecycle defines the lifecycle interface for servers.
type Lifecycle interface {
	// Start starts the server. It returns once the server is accepting.
	Start(ctx context.Context) error
	// Stop stops the server gracefully.
	Stop(ctx context.Context) error
}

// Runnable is a named Lifecycle.
type Runnable interface {
	Lifecycle
	// Name returns the server name for identification.
	Name() string
}

// CloseFunc releases a resource during shutdown.
type CloseFunc func(ctx context.Context) error
