package app

import (
	"context"
	"errors"
	"fmt"

	"taskpulse/internal/config"
	"taskpulse/internal/repo"
)

// ResolveConfig loads the workspace config from the database, seeding the
// defaults on first use. The YAML file is only an import/export format; the
// DB row is authoritative.
func ResolveConfig(ctx context.Context, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetWorkspaceConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	cfg = config.Default()
	if err := r.UpsertWorkspaceConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("seed workspace config: %w", err)
	}
	return cfg, nil
}

// ImportConfig validates and stores a config document as the workspace
// config, replacing whatever was there.
func ImportConfig(ctx context.Context, r repo.Repo, data []byte) (*config.Config, error) {
	cfg, err := config.FromYAML(data)
	if err != nil {
		return nil, err
	}
	if err := r.UpsertWorkspaceConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
