package api

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/buffr/internal/chain"
	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/prompt"
	"github.com/p-blackswan/buffr/internal/resolver"
)

type promptHandlers struct {
	*Server
}

func newPromptHandlers(s *Server) *promptHandlers {
	return &promptHandlers{Server: s}
}

// RegisterRoutes registers prompt routes.
func (h *promptHandlers) RegisterRoutes(v1 fiber.Router) {
	g := v1.Group("/prompts")
	g.Post("/", h.CreatePrompt)
	g.Get("/", h.ListPrompts)
	g.Post("/resolve", h.ResolvePrompt)
	g.Get("/:id", h.GetPrompt)
	g.Patch("/:id", h.UpdatePrompt)
	g.Delete("/:id", h.DeletePrompt)
	g.Post("/:id/run", h.RunPrompt)
}

func (h *promptHandlers) CreatePrompt(c *fiber.Ctx) error {
	var req prompt.CreateInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	p, err := h.deps.Prompts.Create(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// ListPrompts lists every prompt, or with ?projectId= the global ones plus
// those scoped to the project.
func (h *promptHandlers) ListPrompts(c *fiber.Ctx) error {
	prompts, err := h.deps.Prompts.List(c.UserContext(), c.Query("projectId"))
	if err != nil {
		return err
	}
	if prompts == nil {
		prompts = []*prompt.Prompt{}
	}
	return c.JSON(fiber.Map{"prompts": prompts, "total": len(prompts)})
}

func (h *promptHandlers) GetPrompt(c *fiber.Ctx) error {
	p, err := h.deps.Prompts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (h *promptHandlers) UpdatePrompt(c *fiber.Ctx) error {
	var req prompt.UpdateInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	p, err := h.deps.Prompts.Update(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (h *promptHandlers) DeletePrompt(c *fiber.Ctx) error {
	if err := h.deps.Prompts.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// resolveRequest names the template by body or by stored prompt id.
type resolveRequest struct {
	Body      string `json:"body"`
	PromptID  string `json:"promptId"`
	ProjectID string `json:"projectId"`
}

// runResponse is the answer of a prompt run.
type runResponse struct {
	PromptID         string          `json:"promptId"`
	Text             string          `json:"text"`
	SuggestedActions []chain.Action  `json:"suggestedActions"`
	Fallback         bool            `json:"fallback"`
	Truncated        bool            `json:"truncated,omitempty"`
	Model            string          `json:"model,omitempty"`
	Resolved         string          `json:"resolved"`
	Calls            []resolver.Call `json:"calls"`
	UsageCount       int             `json:"usageCount"`
}

// variables builds the variable context for projectID. An empty id yields
// a context with only the clock set.
func (h *promptHandlers) variables(ctx context.Context, projectID string) (resolver.Context, error) {
	vc := resolver.Context{Now: h.now()}
	if projectID == "" {
		return vc, nil
	}
	p, err := h.deps.Projects.GetProject(ctx, projectID)
	if err != nil {
		return vc, err
	}
	last, err := h.deps.Projects.LatestSession(ctx, projectID)
	if err != nil {
		return vc, err
	}
	vc.Project = p
	vc.LastSession = last
	return vc, nil
}

// template returns the body to resolve and the project it runs against.
// A stored project-scoped prompt supplies its own project when none is
// given.
func (h *promptHandlers) template(ctx context.Context, req resolveRequest) (string, string, error) {
	if strings.TrimSpace(req.Body) != "" {
		return req.Body, req.ProjectID, nil
	}
	if req.PromptID == "" {
		return "", "", perrors.Invalid("body or promptId is required")
	}
	p, err := h.deps.Prompts.Get(ctx, req.PromptID)
	if err != nil {
		return "", "", err
	}
	projectID := req.ProjectID
	if projectID == "" && !p.IsGlobal() {
		projectID = p.Scope
	}
	return p.Body, projectID, nil
}

// ResolvePrompt previews a template with variables and tool data filled
// in. It never calls the LLM.
func (h *promptHandlers) ResolvePrompt(c *fiber.Ctx) error {
	var req resolveRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	body, projectID, err := h.template(ctx, req)
	if err != nil {
		return err
	}
	vc, err := h.variables(ctx, projectID)
	if err != nil {
		return err
	}
	res, err := h.deps.Resolver.Resolve(ctx, body, vc)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// RunPrompt resolves a stored prompt, sends it through the chain and
// counts the use. The body is optional and may carry projectId.
func (h *promptHandlers) RunPrompt(c *fiber.Ctx) error {
	var req resolveRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	req.Body = ""
	req.PromptID = c.Params("id")

	if h.deps.Chain == nil {
		return perrors.ErrNotConfigured
	}
	ctx := c.UserContext()
	body, projectID, err := h.template(ctx, req)
	if err != nil {
		return err
	}
	vc, err := h.variables(ctx, projectID)
	if err != nil {
		return err
	}
	res, err := h.deps.Resolver.Resolve(ctx, body, vc)
	if err != nil {
		return err
	}
	out, err := h.deps.Chain.Run(ctx, res.Text)
	if err != nil {
		return err
	}
	p, err := h.deps.Prompts.IncrementUsage(ctx, req.PromptID)
	if err != nil {
		return err
	}
	return c.JSON(runResponse{
		PromptID:         p.ID,
		Text:             out.Text,
		SuggestedActions: out.SuggestedActions,
		Fallback:         out.Fallback,
		Truncated:        out.Truncated,
		Model:            out.Model,
		Resolved:         res.Text,
		Calls:            res.Calls,
		UsageCount:       p.UsageCount,
	})
}
