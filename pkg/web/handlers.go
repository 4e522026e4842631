package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/registry"
	"github.com/flowlinehq/flowline/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// APIHandlers routes HTTP requests to the service layer. Workspace scoping
// comes from the X-Workspace-ID header set by the platform gateway.
type APIHandlers struct {
	definitions *services.Definitions
	automations *services.Automations
	executions  *services.Executions
	deadLetters *services.DeadLetters
	validator   *validator.Validate
	registry    *registry.Registry
}

func NewAPIHandlers(
	definitions *services.Definitions,
	automations *services.Automations,
	executions *services.Executions,
	deadLetters *services.DeadLetters,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		definitions: definitions,
		automations: automations,
		executions:  executions,
		deadLetters: deadLetters,
		validator:   validator,
		registry:    registry,
	}
}

const workspaceHeader = "X-Workspace-ID"

func (h *APIHandlers) workspaceID(c fiber.Ctx) string {
	return c.Get(workspaceHeader)
}

// Definitions

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	definitions, err := h.definitions.List(c.Context(), h.workspaceID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"definitions": definitions})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	definition, err := h.definitions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	return h.saveDefinition(c, "")
}

func (h *APIHandlers) UpdateDefinition(c fiber.Ctx) error {
	return h.saveDefinition(c, c.Params("id"))
}

func (h *APIHandlers) saveDefinition(c fiber.Ctx, id string) error {
	var req SaveDefinitionRequest

	err := c.Bind().Body(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	definition, err := h.definitions.Save(c.Context(), services.SaveDefinitionRequest{
		ID:          id,
		WorkspaceID: h.workspaceID(c),
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		SavedBy:     req.SavedBy,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}

	return c.Status(status).JSON(definition)
}

func (h *APIHandlers) DeleteDefinition(c fiber.Ctx) error {
	err := h.definitions.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(http.StatusNoContent)
}

func (h *APIHandlers) ListDefinitionVersions(c fiber.Ctx) error {
	versions, err := h.definitions.ListVersions(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"versions": versions})
}

func (h *APIHandlers) RollbackDefinition(c fiber.Ctx) error {
	var req RollbackRequest

	err := c.Bind().Body(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	definition, err := h.definitions.Rollback(c.Context(), c.Params("id"), req.Version, req.SavedBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

// Automations

func (h *APIHandlers) ListAutomations(c fiber.Ctx) error {
	automations, err := h.automations.List(c.Context(), h.workspaceID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"automations": automations})
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	automation, err := h.automations.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) CreateAutomation(c fiber.Ctx) error {
	return h.saveAutomation(c, "")
}

func (h *APIHandlers) UpdateAutomation(c fiber.Ctx) error {
	return h.saveAutomation(c, c.Params("id"))
}

func (h *APIHandlers) saveAutomation(c fiber.Ctx, id string) error {
	var req SaveAutomationRequest

	err := c.Bind().Body(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	automation, err := h.automations.Save(c.Context(), services.SaveAutomationRequest{
		ID:               id,
		WorkspaceID:      h.workspaceID(c),
		Name:             req.Name,
		DefinitionID:     req.DefinitionID,
		TriggerType:      req.TriggerType,
		TriggerConfig:    req.TriggerConfig,
		Conditions:       req.Conditions,
		RetryConfig:      req.RetryConfig,
		Enabled:          req.Enabled,
		NotifyOnFailure:  req.NotifyOnFailure,
		NotifyRecipients: req.NotifyRecipients,
		MonthlyRunLimit:  req.MonthlyRunLimit,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}

	return c.Status(status).JSON(automation)
}

// Executions

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	req := services.ListExecutionsRequest{WorkspaceID: h.workspaceID(c)}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		req.Status = &status
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit: "+err.Error())
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return badRequest(c, "Invalid offset: "+err.Error())
		}

		req.Offset = offset
	}

	executions, err := h.executions.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	detail, err := h.executions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	var req CancelExecutionRequest

	err := c.Bind().Body(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	execution, err := h.executions.Cancel(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// Dead letters

func (h *APIHandlers) ListDeadLetters(c fiber.Ctx) error {
	var status *models.DeadLetterStatus

	if statusStr := c.Query("status"); statusStr != "" {
		parsed := models.DeadLetterStatus(statusStr)
		status = &parsed
	}

	entries, err := h.deadLetters.List(c.Context(), h.workspaceID(c), status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"dead_letters": entries})
}

func (h *APIHandlers) GetDeadLetter(c fiber.Ctx) error {
	entry, err := h.deadLetters.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(entry)
}

func (h *APIHandlers) ResolveDeadLetter(c fiber.Ctx) error {
	return h.triageDeadLetter(c, h.deadLetters.Resolve)
}

func (h *APIHandlers) IgnoreDeadLetter(c fiber.Ctx) error {
	return h.triageDeadLetter(c, h.deadLetters.Ignore)
}

func (h *APIHandlers) triageDeadLetter(c fiber.Ctx, triage func(ctx context.Context, id, resolvedBy, notes string) (*models.DeadLetterEntry, error)) error {
	var req TriageRequest

	err := c.Bind().Body(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	entry, err := triage(c.Context(), c.Params("id"), req.ResolvedBy, req.Notes)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(entry)
}

func (h *APIHandlers) ReplayDeadLetter(c fiber.Ctx) error {
	var req ReplayRequest

	err := c.Bind().Body(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	entry, err := h.deadLetters.Replay(c.Context(), c.Params("id"), req.RequestedBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(entry)
}

// Node types

func (h *APIHandlers) ListNodeTypes(c fiber.Ctx) error {
	factories := h.registry.Factories()

	types := make([]NodeTypeResponse, 0, len(factories))
	for _, factory := range factories {
		types = append(types, NodeTypeResponse{
			ID:          factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return c.JSON(fiber.Map{"node_types": types})
}

// Health

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, healthy := h.definitions.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := http.StatusOK

	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"persistence": message,
		},
	})
}
