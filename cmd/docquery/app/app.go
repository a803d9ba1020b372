// Package app provides the docquery server application.
package app

import (
	"context"
	"fmt"

	"github.com/kart-io/docquery/cmd/docquery/app/options"
	"github.com/kart-io/docquery/pkg/app"
)

const (
	// Name is the name of the application.
	Name = "docquery"

	// commandDesc is the description of the command.
	commandDesc = `Document question answering service.

This server provides:
  - Document ingestion with sentence-aware chunking and vector embeddings
  - Semantic, hybrid, and keyword-based passage retrieval
  - Grounded answer synthesis with source citations and compliance labels
  - Multi-question batch sessions with optional multi-model comparison
  - Support for multiple LLM providers (Ollama, OpenAI, DeepSeek)`
)

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(Name),
		app.WithShortDescription("Document QA service"),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := context.Background()
		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return server.Run(ctx)
	}
}
