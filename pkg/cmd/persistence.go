// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/dukex/fanflow/pkg/persistence/file"
	"github.com/dukex/fanflow/pkg/persistence/memory"
	"github.com/dukex/fanflow/pkg/persistence/postgresql"
)

// NewPersistence picks the backend from the scheme of databaseURL: "memory://",
// "postgres://" or "postgresql://", and "file://<dir>". A URL without a scheme is a
// directory for the file backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, location := parsePersistenceProvider(databaseURL)

	logger.InfoContext(ctx, "Initializing persistence", "provider", provider)

	switch provider {
	case "memory":
		return memory.NewPersistence()
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "file":
		return file.NewPersistence(location), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider: %s", provider)
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	provider, location, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	return provider, location
}
