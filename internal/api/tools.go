package api

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/integration"
	"github.com/p-blackswan/buffr/internal/tool"
)

type toolHandlers struct {
	*Server
	logger zerolog.Logger
}

func newToolHandlers(s *Server) *toolHandlers {
	return &toolHandlers{
		Server: s,
		logger: s.logger.With().Str("handlers", "tools").Logger(),
	}
}

// RegisterRoutes registers tool, tool config and integration routes.
func (h *toolHandlers) RegisterRoutes(v1 fiber.Router) {
	v1.Get("/tools", h.ListTools)
	v1.Post("/tools/:name/execute", h.ExecuteTool)

	v1.Get("/tool-configs", h.ListConfigs)
	v1.Get("/tool-configs/:service", h.GetConfig)
	v1.Put("/tool-configs/:service", h.PutConfig)
	v1.Delete("/tool-configs/:service", h.DeleteConfig)

	ig := v1.Group("/integrations")
	ig.Post("/", h.CreateIntegration)
	ig.Get("/", h.ListIntegrations)
	ig.Get("/:id", h.GetIntegration)
	ig.Patch("/:id", h.UpdateIntegration)
	ig.Delete("/:id", h.DeleteIntegration)
}

func (h *toolHandlers) ListTools(c *fiber.Ctx) error {
	schemas := h.deps.Tools.Schemas()
	return c.JSON(fiber.Map{"tools": schemas, "total": len(schemas)})
}

type executeRequest struct {
	Input     json.RawMessage `json:"input"`
	ProjectID string          `json:"projectId"`
}

type executeResponse struct {
	Tool       string          `json:"tool"`
	Output     string          `json:"output"`
	JSON       json.RawMessage `json:"json,omitempty"`
	DurationMs int64           `json:"durationMs"`
}

// ExecuteTool runs one tool. With projectId the tool sees that project's
// scope, so repo and database parameters may be omitted.
func (h *toolHandlers) ExecuteTool(c *fiber.Ctx) error {
	var req executeRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	if len(req.Input) > 0 {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(req.Input, &obj); err != nil {
			return perrors.Invalid("input must be a JSON object")
		}
	}

	ctx := c.UserContext()
	if req.ProjectID != "" {
		p, err := h.deps.Projects.GetProject(ctx, req.ProjectID)
		if err != nil {
			return err
		}
		ctx = tool.WithScope(ctx, p.ToolScope())
	}

	name := c.Params("name")
	start := time.Now()
	out, err := h.deps.Tools.Execute(ctx, name, req.Input)
	if err != nil {
		return err
	}
	resp := executeResponse{
		Tool:       name,
		Output:     out,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if json.Valid([]byte(out)) {
		resp.JSON = json.RawMessage(out)
	}
	return c.JSON(resp)
}

// --- Tool configs ---

func (h *toolHandlers) ListConfigs(c *fiber.Ctx) error {
	configs, err := h.deps.Integrations.ListConfigs(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"configs": configs})
}

func (h *toolHandlers) GetConfig(c *fiber.Ctx) error {
	v, err := h.deps.Integrations.GetConfig(c.UserContext(), c.Params("service"))
	if err != nil {
		return err
	}
	return c.JSON(v)
}

// PutConfig stores credentials. Cached work items were fetched with the
// old ones and are dropped.
func (h *toolHandlers) PutConfig(c *fiber.Ctx) error {
	var req integration.ConfigInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	v, err := h.deps.Integrations.PutConfig(c.UserContext(), c.Params("service"), req)
	if err != nil {
		return err
	}
	h.invalidate()
	return c.JSON(v)
}

func (h *toolHandlers) DeleteConfig(c *fiber.Ctx) error {
	if err := h.deps.Integrations.DeleteConfig(c.UserContext(), c.Params("service")); err != nil {
		return err
	}
	h.invalidate()
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *toolHandlers) invalidate() {
	if h.deps.WorkItems != nil {
		h.deps.WorkItems.Invalidate()
	}
}

// --- Custom integrations ---

func (h *toolHandlers) CreateIntegration(c *fiber.Ctx) error {
	var req integration.IntegrationInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ci, err := h.deps.Integrations.CreateIntegration(c.UserContext(), req)
	if err != nil {
		return err
	}
	h.deps.Registrar.Install(ci)
	h.logger.Info().Str("integration_id", ci.ID).Str("tool", ci.ToolName()).Msg("custom integration registered")
	return c.Status(fiber.StatusCreated).JSON(ci.Masked())
}

func (h *toolHandlers) ListIntegrations(c *fiber.Ctx) error {
	list, err := h.deps.Integrations.ListIntegrations(c.UserContext())
	if err != nil {
		return err
	}
	masked := make([]*integration.CustomIntegration, 0, len(list))
	for _, ci := range list {
		masked = append(masked, ci.Masked())
	}
	return c.JSON(fiber.Map{"integrations": masked, "total": len(masked)})
}

func (h *toolHandlers) GetIntegration(c *fiber.Ctx) error {
	ci, err := h.deps.Integrations.GetIntegration(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ci.Masked())
}

func (h *toolHandlers) UpdateIntegration(c *fiber.Ctx) error {
	var req integration.IntegrationInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	prev, next, err := h.deps.Integrations.UpdateIntegration(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	h.deps.Registrar.Rename(prev, next)
	return c.JSON(next.Masked())
}

func (h *toolHandlers) DeleteIntegration(c *fiber.Ctx) error {
	ci, err := h.deps.Integrations.DeleteIntegration(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	h.deps.Registrar.Remove(ci)
	h.logger.Info().Str("integration_id", ci.ID).Str("tool", ci.ToolName()).Msg("custom integration removed")
	return c.SendStatus(fiber.StatusNoContent)
}
