// Package web provides the HTTP surface of the execution core: graph
// upload, import/export, and the run/step/resume/cancel operations.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/xde-mcp/sim-sub005/pkg/document"
	"github.com/xde-mcp/sim-sub005/pkg/execution"
	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/persistence"
	"github.com/xde-mcp/sim-sub005/pkg/services"
	"github.com/xde-mcp/sim-sub005/pkg/snapshot"
	"github.com/xde-mcp/sim-sub005/pkg/trigger"
)

type APIHandlers struct {
	sessions  *services.SessionManager
	importer  *document.Importer
	snapshots *snapshot.Store
	execLogs  persistence.ExecutionLogRepository
	validator *validator.Validate
}

func NewAPIHandlers(
	sessions *services.SessionManager,
	importer *document.Importer,
	snapshots *snapshot.Store,
	execLogs persistence.ExecutionLogRepository,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		sessions:  sessions,
		importer:  importer,
		snapshots: snapshots,
		execLogs:  execLogs,
		validator: validator,
	}
}

// Register mounts every route on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	w := app.Group("/workflows")
	w.Put("/:id", h.PutWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Post("/:id/import", h.ImportWorkflow)
	w.Get("/:id/export", h.ExportWorkflow)

	w.Post("/:id/execute", h.Execute)
	w.Post("/:id/execute-from/:blockId", h.ExecuteFromBlock)
	w.Post("/:id/execute-until/:blockId", h.ExecuteUntilBlock)
	w.Post("/:id/step", h.Step)
	w.Post("/:id/resume", h.Resume)
	w.Post("/:id/cancel", h.CancelExecution)

	w.Get("/:id/execution", h.GetExecutionState)
	w.Get("/:id/snapshot", h.GetSnapshot)
	w.Get("/:id/executions", h.ListExecutions)
}

// PutWorkflow replaces the session's graph wholesale.
func (h *APIHandlers) PutWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var state models.WorkflowState
	if err := c.Bind().JSON(&state); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	state.WorkflowID = id

	if state.Blocks == nil {
		state.Blocks = make(map[string]*models.Block)
	}

	for _, block := range state.Blocks {
		if err := h.validator.Struct(block); err != nil {
			return badRequest(c, err.Error())
		}
	}

	for _, edge := range state.Edges {
		if err := h.validator.Struct(edge); err != nil {
			return badRequest(c, err.Error())
		}
	}

	session := h.sessions.Open(id)
	session.SetState(&state)

	return c.JSON(session.State())
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "Workflow not found")
	}

	return c.JSON(session.State())
}

// ImportWorkflow reconciles an uploaded YAML document into the session.
// Policy "fresh" (default) mints all new identities; "merge" folds the
// document into the open graph, preserving the surviving trigger.
func (h *APIHandlers) ImportWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	policy := document.PolicyFresh
	if c.Query("policy") == "merge" {
		policy = document.PolicyMerge
	}

	session := h.sessions.Open(id)

	state, diagnostics, err := h.importer.Import(c.Body(), policy, session.State(), id)
	if err != nil {
		return badRequest(c, err.Error())
	}

	session.SetState(state)

	resp := ImportResponse{State: state}
	for _, d := range diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, d.Message)
	}

	return c.JSON(resp)
}

func (h *APIHandlers) ExportWorkflow(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "Workflow not found")
	}

	data, err := document.Export(session.State())
	if err != nil {
		return internalError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/yaml")

	return c.Send(data)
}

func (h *APIHandlers) Execute(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "Workflow not found")
	}

	var req RunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	mode := trigger.Mode(req.Mode)
	if mode == "" {
		mode = trigger.ModeManual
	}

	result, err := session.Controller().Run(c.Context(), session.State(), execution.RunOptions{
		Mode:  mode,
		Input: req.Input,
		Debug: req.Debug,
	})
	if err != nil {
		return handleRunError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ExecuteFromBlock(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "Workflow not found")
	}

	var req PartialRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := session.Controller().RunFromBlock(c.Context(), session.State(), c.Params("blockId"), req.Input)
	if err != nil {
		return handleRunError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ExecuteUntilBlock(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "Workflow not found")
	}

	var req PartialRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	mode := trigger.Mode(req.Mode)
	if mode == "" {
		mode = trigger.ModeManual
	}

	result, err := session.Controller().RunUntilBlock(c.Context(), session.State(), c.Params("blockId"), execution.RunOptions{
		Mode:  mode,
		Input: req.Input,
	})
	if err != nil {
		return handleRunError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) Step(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "Workflow not found")
	}

	result, err := session.Controller().Step(c.Context())
	if err != nil {
		return handleRunError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) Resume(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "Workflow not found")
	}

	result, err := session.Controller().Resume(c.Context())
	if err != nil {
		return handleRunError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "Workflow not found")
	}

	if err := session.Controller().Cancel(c.Context()); err != nil {
		return handleRunError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetExecutionState(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "Workflow not found")
	}

	controller := session.Controller()

	return c.JSON(ExecutionStateResponse{
		WorkflowID:    session.WorkflowID,
		State:         string(controller.State()),
		PendingBlocks: controller.PendingBlocks(),
		Streamed:      controller.StreamedContent(),
		Traversed:     controller.TraversedEdges(),
	})
}

func (h *APIHandlers) GetSnapshot(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "Workflow not found")
	}

	return c.JSON(h.snapshots.Get(c.Context(), session.WorkflowID))
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return notFound(c, "Workflow not found")
	}

	records, err := h.execLogs.ExecutionsByWorkflow(c.Context(), session.WorkflowID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"executions": records, "count": len(records)})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
