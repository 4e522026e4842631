package services

import (
	"context"
	"fmt"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrDefinitionNotFound is returned when a workflow definition is not found.
var ErrDefinitionNotFound = persistence.ErrDefinitionNotFound

// Definitions handles workflow definition management. Every save validates
// the graph, recomputes the execution order, and snapshots an immutable
// version so running executions are never edited underneath.
type Definitions struct {
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewDefinitions creates a new definition service.
func NewDefinitions(persistence persistence.Persistence) *Definitions {
	return &Definitions{
		persistence: persistence,
		validator:   validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Definitions) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// SaveDefinitionRequest carries a full definition payload from the editor.
type SaveDefinitionRequest struct {
	ID          string
	WorkspaceID string `validate:"required"`
	Name        string `validate:"required,min=3"`
	Description string
	Status      models.DefinitionStatus
	Nodes       []*models.Node
	Edges       []*models.Edge
	SavedBy     string
}

// Save creates or updates a definition and snapshots a new version.
func (s *Definitions) Save(ctx context.Context, req SaveDefinitionRequest) (*models.WorkflowDefinition, error) {
	err := s.validator.Struct(req)
	if err != nil {
		return nil, NewValidationError("Save", "INVALID_DEFINITION", err.Error(), ErrInvalidRequest)
	}

	if req.Status == "" {
		req.Status = models.DefinitionStatusDraft
	}

	switch req.Status {
	case models.DefinitionStatusDraft, models.DefinitionStatusActive, models.DefinitionStatusArchived:
	default:
		return nil, NewValidationError("Save", "INVALID_STATUS",
			fmt.Sprintf("unknown status %q", req.Status), ErrInvalidStatus)
	}

	now := time.Now().UTC()
	version := 1

	var definition *models.WorkflowDefinition

	if req.ID != "" {
		existing, err := s.persistence.Definitions().ByID(ctx, req.ID)
		if err != nil && !persistence.IsDefinitionNotFound(err) {
			return nil, fmt.Errorf("failed to load definition: %w", err)
		}

		if existing != nil {
			if existing.Status == models.DefinitionStatusArchived && req.Status == models.DefinitionStatusArchived {
				return nil, ErrDefinitionArchived
			}

			definition = existing
			version = existing.Version + 1
		}
	}

	if definition == nil {
		definition = &models.WorkflowDefinition{
			ID:        req.ID,
			CreatedAt: now,
		}
		if definition.ID == "" {
			definition.ID = uuid.New().String()
		}
	}

	definition.WorkspaceID = req.WorkspaceID
	definition.Name = req.Name
	definition.Description = req.Description
	definition.Status = req.Status
	definition.Nodes = req.Nodes
	definition.Edges = req.Edges
	definition.Version = version
	definition.UpdatedAt = now

	graph := definition.Snapshot()

	err = graph.Validate()
	if err != nil {
		return nil, NewValidationError("Save", "INVALID_GRAPH", err.Error(), ErrInvalidGraph)
	}

	order, err := graph.ComputeExecutionOrder()
	if err != nil {
		return nil, NewValidationError("Save", "INVALID_GRAPH", err.Error(), ErrInvalidGraph)
	}

	definition.ExecutionOrder = order

	err = s.persistence.Definitions().Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to save definition: %w", err)
	}

	err = s.persistence.Versions().Save(ctx, &models.WorkflowVersion{
		ID:           uuid.New().String(),
		DefinitionID: definition.ID,
		Version:      version,
		Graph:        definition.Snapshot(),
		CreatedAt:    now,
		CreatedBy:    req.SavedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot version: %w", err)
	}

	return definition, nil
}

// Get returns a definition by id.
func (s *Definitions) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return s.persistence.Definitions().ByID(ctx, id)
}

// List returns all definitions in a workspace.
func (s *Definitions) List(ctx context.Context, workspaceID string) ([]*models.WorkflowDefinition, error) {
	if workspaceID == "" {
		return nil, ErrEmptyWorkspaceID
	}

	return s.persistence.Definitions().ByWorkspace(ctx, workspaceID)
}

// Delete soft-deletes a definition.
func (s *Definitions) Delete(ctx context.Context, id string) error {
	return s.persistence.Definitions().Delete(ctx, id)
}

// ListVersions returns the version history of a definition.
func (s *Definitions) ListVersions(ctx context.Context, definitionID string) ([]*models.WorkflowVersion, error) {
	return s.persistence.Versions().ListByDefinition(ctx, definitionID)
}

// Rollback restores an old version's graph as the definition's newest
// version. The old snapshot itself stays immutable.
func (s *Definitions) Rollback(ctx context.Context, definitionID string, version int, savedBy string) (*models.WorkflowDefinition, error) {
	snapshot, err := s.persistence.Versions().ByDefinitionAndVersion(ctx, definitionID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load version %d: %w", version, err)
	}

	definition, err := s.persistence.Definitions().ByID(ctx, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load definition: %w", err)
	}

	return s.Save(ctx, SaveDefinitionRequest{
		ID:          definition.ID,
		WorkspaceID: definition.WorkspaceID,
		Name:        definition.Name,
		Description: definition.Description,
		Status:      definition.Status,
		Nodes:       snapshot.Graph.Nodes,
		Edges:       snapshot.Graph.Edges,
		SavedBy:     savedBy,
	})
}
