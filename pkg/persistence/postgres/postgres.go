// Package postgres provides the PostgreSQL persistence implementation for
// the workflow automation engine.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	definitions   *DefinitionRepository
	versions      *VersionRepository
	automations   *AutomationRepository
	executions    *ExecutionRepository
	steps         *StepRepository
	subscriptions *SubscriptionRepository
	deadLetters   *DeadLetterRepository
}

// NewPersistence connects, runs migrations, and wires the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		definitions:   NewDefinitionRepository(database, logger),
		versions:      NewVersionRepository(database, logger),
		automations:   NewAutomationRepository(database, logger),
		executions:    NewExecutionRepository(database, logger),
		steps:         NewStepRepository(database, logger),
		subscriptions: NewSubscriptionRepository(database, logger),
		deadLetters:   NewDeadLetterRepository(database, logger),
	}, nil
}

func (p *Persistence) Definitions() persistence.DefinitionRepository { return p.definitions }

func (p *Persistence) Versions() persistence.VersionRepository { return p.versions }

func (p *Persistence) Automations() persistence.AutomationRepository { return p.automations }

func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }

func (p *Persistence) Steps() persistence.StepRepository { return p.steps }

func (p *Persistence) Subscriptions() persistence.SubscriptionRepository { return p.subscriptions }

func (p *Persistence) DeadLetters() persistence.DeadLetterRepository { return p.deadLetters }

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
