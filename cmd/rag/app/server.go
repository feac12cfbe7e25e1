// Package app provides the RAG server application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/learning-rag/cmd/rag/app/options"
	"github.com/kart-io/learning-rag/pkg/infra/app"
)

const (
	// Name is the name of the application.
	Name = "learning-rag"

	// commandDesc is the description of the command.
	commandDesc = `Learning RAG Service

A retrieval-augmented question answering service over your own learning materials.

This server provides:
  - Upload of PDF, text and Markdown documents, grouped by topic
  - Semantic search restricted to selected topics
  - Grounded answers with source citations, optionally streamed over SSE
  - Topic management: listing, renaming and deleting topics and files
  - Support for Ollama and OpenAI compatible LLM providers`
)

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	application := app.NewApp(
		app.WithName(Name),
		app.WithShortDescription("Learning RAG API server"),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)

	return application
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		// Load the configuration options
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		// Build the server using the configuration
		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		// Run the server with signal context for graceful shutdown
		return server.Run(ctx)
	}
}

// setupSignalContext returns a context that is cancelled on the first
// SIGINT or SIGTERM. A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
