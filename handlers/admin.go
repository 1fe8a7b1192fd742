package handlers

import (
	"competition-service/middleware"
	"competition-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	Competitions *services.CompetitionService
	Winners      *services.WinnerService
	Log          *logrus.Logger
}

// SetupAdminRoutes registers competition management routes behind userCtx.
// Capability checks happen in the services.
func SetupAdminRoutes(app fiber.Router, h *AdminHandler, userCtx fiber.Handler) {
	admin := app.Group("/admin/competitions", userCtx)

	admin.Post("/", h.CreateCompetition)
	admin.Get("/", h.ListCompetitions)
	admin.Patch("/:id/active", h.SetActive)
	admin.Post("/:id/winners/auto", h.AutoSelectWinners)
	admin.Post("/:id/winners", h.SelectWinners)
	admin.Get("/:id/winners", h.ListWinners)
	admin.Post("/:id/fulfill", h.FulfillPrizes)
}

func (h *AdminHandler) CreateCompetition(c *fiber.Ctx) error {
	var req services.CreateCompetitionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	competition, err := h.Competitions.Create(c.UserContext(), middleware.PrincipalFrom(c), req)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(competition)
}

func (h *AdminHandler) ListCompetitions(c *fiber.Ctx) error {
	if !middleware.PrincipalFrom(c).Can(services.CapabilityManageCompetitions) {
		return respondError(c, h.Log, services.ErrForbidden)
	}
	competitions, err := h.Competitions.List(c.UserContext(), c.QueryBool("active", false))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(fiber.Map{"competitions": competitions, "count": len(competitions)})
}

func (h *AdminHandler) SetActive(c *fiber.Ctx) error {
	var body struct {
		IsActive *bool `json:"is_active"`
	}
	if err := c.BodyParser(&body); err != nil || body.IsActive == nil {
		return badRequest(c, "is_active (boolean) is required")
	}
	competition, err := h.Competitions.SetActive(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"), *body.IsActive)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(competition)
}

func (h *AdminHandler) SelectWinners(c *fiber.Ctx) error {
	var body struct {
		Identities []string `json:"identities"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	result, err := h.Winners.SelectWinners(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"), body.Identities)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(result)
}

func (h *AdminHandler) AutoSelectWinners(c *fiber.Ctx) error {
	result, err := h.Winners.AutoSelectWinners(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(result)
}

func (h *AdminHandler) ListWinners(c *fiber.Ctx) error {
	winners, err := h.Winners.ListWinners(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(fiber.Map{"competition_id": c.Params("id"), "winners": winners})
}

func (h *AdminHandler) FulfillPrizes(c *fiber.Ctx) error {
	result, err := h.Winners.FulfillPrizes(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(fiber.Map{
		"competition_id": result.CompetitionID,
		"granted_count":  result.GrantedCount,
		"failures":       result.Failures,
		"partial":        result.Partial(),
	})
}
