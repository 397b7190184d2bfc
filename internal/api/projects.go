package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/project"
	"github.com/p-blackswan/buffr/internal/suggest"
	"github.com/p-blackswan/buffr/internal/workitem"
)

// parseBody decodes a JSON request body into v.
func parseBody(c *fiber.Ctx, v interface{}) error {
	if len(c.Body()) == 0 {
		return perrors.Invalid("request body is required")
	}
	if err := c.BodyParser(v); err != nil {
		return perrors.Invalid("invalid request body: %v", err)
	}
	return nil
}

type projectHandlers struct {
	*Server
	logger zerolog.Logger
}

func newProjectHandlers(s *Server) *projectHandlers {
	return &projectHandlers{
		Server: s,
		logger: s.logger.With().Str("handlers", "projects").Logger(),
	}
}

// RegisterRoutes registers project, session and note routes.
func (h *projectHandlers) RegisterRoutes(v1 fiber.Router) {
	pg := v1.Group("/projects")
	pg.Post("/", h.CreateProject)
	pg.Get("/", h.ListProjects)
	pg.Get("/:id", h.GetProject)
	pg.Patch("/:id", h.UpdateProject)
	pg.Delete("/:id", h.DeleteProject)

	pg.Get("/:id/next-actions", h.NextActions)
	pg.Get("/:id/suggestions", h.Suggestions)
	pg.Post("/:id/suggestions/:sid/dismiss", h.DismissSuggestion)
	pg.Get("/:id/work-items", h.WorkItems)

	pg.Post("/:id/sessions", h.CreateSession)
	pg.Get("/:id/sessions", h.ListSessions)
	pg.Get("/:id/sessions/latest", h.LatestSession)
	pg.Delete("/:id/sessions/:sid", h.DeleteSession)

	pg.Post("/:id/notes", h.CreateNote)
	pg.Get("/:id/notes", h.ListNotes)
	pg.Delete("/:id/notes/:nid", h.DeleteNote)
}

func (h *projectHandlers) CreateProject(c *fiber.Ctx) error {
	var req project.CreateProjectInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	p, err := h.deps.Projects.CreateProject(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *projectHandlers) ListProjects(c *fiber.Ctx) error {
	projects, err := h.deps.Projects.ListProjects(c.UserContext())
	if err != nil {
		return err
	}
	if projects == nil {
		projects = []*project.Project{}
	}
	return c.JSON(fiber.Map{"projects": projects, "total": len(projects)})
}

func (h *projectHandlers) GetProject(c *fiber.Ctx) error {
	p, err := h.deps.Projects.GetProject(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (h *projectHandlers) UpdateProject(c *fiber.Ctx) error {
	var req project.UpdateProjectInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	p, err := h.deps.Projects.UpdateProject(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// DeleteProject removes the project, its sessions and notes, and the
// prompts scoped to it.
func (h *projectHandlers) DeleteProject(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	if _, err := h.deps.Projects.GetProject(ctx, id); err != nil {
		return err
	}
	n, err := h.deps.Prompts.DeleteScope(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting prompts of project %s: %w", id, err)
	}
	if n > 0 {
		h.logger.Info().Str("project_id", id).Int("prompts", n).Msg("project prompts deleted")
	}
	if err := h.deps.Projects.DeleteProject(ctx, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// projectState loads what the generators read: the project, its sessions
// and its open work items.
func (h *projectHandlers) projectState(c *fiber.Ctx) (*project.Project, []*project.Session, workitem.Result, error) {
	ctx := c.UserContext()
	p, err := h.deps.Projects.GetProject(ctx, c.Params("id"))
	if err != nil {
		return nil, nil, workitem.Result{}, err
	}
	sessions, err := h.deps.Projects.ListSessions(ctx, p.ID)
	if err != nil {
		return nil, nil, workitem.Result{}, err
	}
	res := workitem.Result{Items: []workitem.WorkItem{}, Errors: []workitem.SourceError{}}
	if h.deps.WorkItems != nil {
		if res, err = h.deps.WorkItems.Aggregate(ctx, p); err != nil {
			return nil, nil, workitem.Result{}, err
		}
	}
	return p, sessions, res, nil
}

func (h *projectHandlers) NextActions(c *fiber.Ctx) error {
	p, sessions, res, err := h.projectState(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"actions":      suggest.NextActions(p, sessions, res.Items, h.now()),
		"sourceErrors": res.Errors,
	})
}

func (h *projectHandlers) Suggestions(c *fiber.Ctx) error {
	p, sessions, res, err := h.projectState(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"suggestions":  suggest.Suggestions(p, sessions, res.Items, h.now()),
		"sourceErrors": res.Errors,
	})
}

func (h *projectHandlers) DismissSuggestion(c *fiber.Ctx) error {
	p, err := h.deps.Projects.DismissSuggestion(c.UserContext(), c.Params("id"), c.Params("sid"))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// WorkItems returns the project's aggregated open items. ?refresh=true
// drops cached results first.
func (h *projectHandlers) WorkItems(c *fiber.Ctx) error {
	if h.deps.WorkItems == nil {
		return perrors.ErrNotConfigured
	}
	if c.QueryBool("refresh") {
		h.deps.WorkItems.Invalidate()
	}
	ctx := c.UserContext()
	p, err := h.deps.Projects.GetProject(ctx, c.Params("id"))
	if err != nil {
		return err
	}
	res, err := h.deps.WorkItems.Aggregate(ctx, p)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// --- Sessions ---

func (h *projectHandlers) CreateSession(c *fiber.Ctx) error {
	var req project.CreateSessionInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	sess, err := h.deps.Projects.CreateSession(ctx, c.Params("id"), req)
	if err != nil {
		return err
	}
	if h.deps.Notifier.Enabled() {
		p, err := h.deps.Projects.GetProject(ctx, sess.ProjectID)
		if err == nil {
			h.deps.Notifier.NotifyAsync(p, sess)
		}
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

func (h *projectHandlers) ListSessions(c *fiber.Ctx) error {
	sessions, err := h.deps.Projects.ListSessions(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []*project.Session{}
	}
	return c.JSON(fiber.Map{"sessions": sessions, "total": len(sessions)})
}

func (h *projectHandlers) LatestSession(c *fiber.Ctx) error {
	sess, err := h.deps.Projects.LatestSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if sess == nil {
		return perrors.NotFound("session", "latest")
	}
	return c.JSON(sess)
}

func (h *projectHandlers) DeleteSession(c *fiber.Ctx) error {
	if err := h.deps.Projects.DeleteSession(c.UserContext(), c.Params("id"), c.Params("sid")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- Notes ---

func (h *projectHandlers) CreateNote(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	n, err := h.deps.Projects.CreateNote(c.UserContext(), c.Params("id"), req.Content)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}

func (h *projectHandlers) ListNotes(c *fiber.Ctx) error {
	notes, err := h.deps.Projects.ListNotes(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if notes == nil {
		notes = []*project.Note{}
	}
	return c.JSON(fiber.Map{"notes": notes, "total": len(notes)})
}

func (h *projectHandlers) DeleteNote(c *fiber.Ctx) error {
	if err := h.deps.Projects.DeleteNote(c.UserContext(), c.Params("id"), c.Params("nid")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
