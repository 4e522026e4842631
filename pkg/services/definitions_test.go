package services

import (
	"context"
	"testing"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func definitionNodes() ([]*models.Node, []*models.Edge) {
	nodes := []*models.Node{
		{ID: "start", Type: "log", Name: "Start", Enabled: true,
			Config: map[string]any{"message": "start"}},
		{ID: "finish", Type: "log", Name: "Finish", Enabled: true,
			Config: map[string]any{"message": "finish"}},
	}
	edges := []*models.Edge{
		{ID: "e1", SourceNodeID: "start", SourcePort: models.PortMain, TargetNodeID: "finish"},
	}

	return nodes, edges
}

func TestDefinitions_Save_CreatesVersionOne(t *testing.T) {
	store := memory.NewPersistence()
	service := NewDefinitions(store)
	ctx := context.Background()

	nodes, edges := definitionNodes()

	definition, err := service.Save(ctx, SaveDefinitionRequest{
		WorkspaceID: "ws-1",
		Name:        "Order workflow",
		Status:      models.DefinitionStatusActive,
		Nodes:       nodes,
		Edges:       edges,
		SavedBy:     "user-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, definition.ID)
	assert.Equal(t, 1, definition.Version)
	assert.Equal(t, []string{"start", "finish"}, definition.ExecutionOrder)

	versions, err := service.ListVersions(ctx, definition.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, "user-1", versions[0].CreatedBy)
	require.NotNil(t, versions[0].Graph)
	assert.Len(t, versions[0].Graph.Nodes, 2)
}

func TestDefinitions_Save_IncrementsVersion(t *testing.T) {
	store := memory.NewPersistence()
	service := NewDefinitions(store)
	ctx := context.Background()

	nodes, edges := definitionNodes()

	definition, err := service.Save(ctx, SaveDefinitionRequest{
		WorkspaceID: "ws-1",
		Name:        "Order workflow",
		Nodes:       nodes,
		Edges:       edges,
	})
	require.NoError(t, err)

	updated, err := service.Save(ctx, SaveDefinitionRequest{
		ID:          definition.ID,
		WorkspaceID: "ws-1",
		Name:        "Order workflow v2",
		Nodes:       nodes,
		Edges:       edges,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	versions, err := service.ListVersions(ctx, definition.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestDefinitions_Save_RejectsInvalidGraph(t *testing.T) {
	store := memory.NewPersistence()
	service := NewDefinitions(store)
	ctx := context.Background()

	nodes, edges := definitionNodes()
	edges = append(edges, &models.Edge{
		ID: "loop", SourceNodeID: "finish", SourcePort: models.PortMain, TargetNodeID: "start",
	})

	_, err := service.Save(ctx, SaveDefinitionRequest{
		WorkspaceID: "ws-1",
		Name:        "Cyclic workflow",
		Nodes:       nodes,
		Edges:       edges,
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestDefinitions_Save_RejectsMissingFields(t *testing.T) {
	store := memory.NewPersistence()
	service := NewDefinitions(store)
	ctx := context.Background()

	_, err := service.Save(ctx, SaveDefinitionRequest{Name: "No workspace"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = service.Save(ctx, SaveDefinitionRequest{WorkspaceID: "ws-1", Name: "ab"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestDefinitions_Save_RejectsUnknownStatus(t *testing.T) {
	store := memory.NewPersistence()
	service := NewDefinitions(store)
	ctx := context.Background()

	_, err := service.Save(ctx, SaveDefinitionRequest{
		WorkspaceID: "ws-1",
		Name:        "Bad status",
		Status:      "published",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDefinitions_Rollback_RestoresOldGraph(t *testing.T) {
	store := memory.NewPersistence()
	service := NewDefinitions(store)
	ctx := context.Background()

	nodes, edges := definitionNodes()

	definition, err := service.Save(ctx, SaveDefinitionRequest{
		WorkspaceID: "ws-1",
		Name:        "Order workflow",
		Nodes:       nodes,
		Edges:       edges,
	})
	require.NoError(t, err)

	// Version 2 drops the second node.
	_, err = service.Save(ctx, SaveDefinitionRequest{
		ID:          definition.ID,
		WorkspaceID: "ws-1",
		Name:        "Order workflow",
		Nodes:       nodes[:1],
	})
	require.NoError(t, err)

	restored, err := service.Rollback(ctx, definition.ID, 1, "user-1")
	require.NoError(t, err)

	// Rollback is itself a new version; the history stays intact.
	assert.Equal(t, 3, restored.Version)
	assert.Len(t, restored.Nodes, 2)

	versions, err := service.ListVersions(ctx, definition.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 3)
}

func TestDefinitions_Delete(t *testing.T) {
	store := memory.NewPersistence()
	service := NewDefinitions(store)
	ctx := context.Background()

	nodes, edges := definitionNodes()

	definition, err := service.Save(ctx, SaveDefinitionRequest{
		WorkspaceID: "ws-1",
		Name:        "To delete",
		Nodes:       nodes,
		Edges:       edges,
	})
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, definition.ID))

	_, err = service.Get(ctx, definition.ID)
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestDefinitions_List_RequiresWorkspace(t *testing.T) {
	service := NewDefinitions(memory.NewPersistence())

	_, err := service.List(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyWorkspaceID)
}
