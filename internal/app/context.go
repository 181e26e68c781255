// Package app wires the workspace pieces (database, config, engine) for the
// CLI and the server command.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"colabora/internal/config"
	"colabora/internal/db"
	"colabora/internal/domain"
	"colabora/internal/engine"
	"colabora/internal/migrate"
	"colabora/internal/repo"
)

// App bundles the open database and the engine built on it.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open prepares the workspace: database opened, migrations applied, config
// loaded (or defaulted when colabora.yml is absent).
func Open(workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &App{
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg),
	}, nil
}

// Close releases the database handle.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// EnsureUser creates the named user if it does not exist and returns it.
// Used by `colab user add` and first-run seeding.
func (a *App) EnsureUser(ctx context.Context, username, password string) (domain.User, error) {
	if username == "" {
		return domain.User{}, fmt.Errorf("username is required")
	}
	existing, err := a.Engine.Repo.GetUserByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: repo.HashSecret(password),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := a.Engine.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// HasUsers reports whether any user exists yet.
func (a *App) HasUsers(ctx context.Context) (bool, error) {
	n, err := a.Engine.Repo.CountUsers(ctx)
	return n > 0, err
}
