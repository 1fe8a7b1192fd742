package handlers

import (
	"competition-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type CompetitionHandler struct {
	Competitions *services.CompetitionService
	Submissions  *services.SubmissionService
	Leaderboard  *services.LeaderboardService
	Log          *logrus.Logger
}

// SetupCompetitionRoutes registers the player-facing routes. They sit behind
// gateway auth only; the player is identified by the submitted identity.
func SetupCompetitionRoutes(app fiber.Router, h *CompetitionHandler) {
	app.Get("/competitions/active", h.GetActive)
	app.Get("/competitions/slug/:slug", h.GetBySlug)
	app.Get("/competitions/:id", h.GetByID)
	app.Post("/competitions/:id/scores", h.SubmitScore)
	app.Get("/competitions/:id/leaderboard", h.GetLeaderboard)
	app.Get("/competitions/:id/rank", h.GetRank)
}

type submitScoreBody struct {
	Identity   string `json:"identity"`
	Score      *int   `json:"score"`
	GameType   string `json:"game_type"`
	AccountRef string `json:"account_ref"`
}

func (h *CompetitionHandler) SubmitScore(c *fiber.Ctx) error {
	var body submitScoreBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if body.Score == nil {
		return badRequest(c, "score is required")
	}

	result, err := h.Submissions.Submit(c.UserContext(), services.SubmitRequest{
		CompetitionID: c.Params("id"),
		Identity:      body.Identity,
		Score:         *body.Score,
		GameType:      body.GameType,
		AccountRef:    body.AccountRef,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *CompetitionHandler) GetLeaderboard(c *fiber.Ctx) error {
	standings, err := h.Leaderboard.GetLeaderboard(c.UserContext(), c.Params("id"), c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(fiber.Map{
		"competition_id": c.Params("id"),
		"leaderboard":    standings,
	})
}

func (h *CompetitionHandler) GetRank(c *fiber.Ctx) error {
	rank, err := h.Leaderboard.GetIdentityRank(c.UserContext(), c.Params("id"), c.Query("identity"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(rank)
}

func (h *CompetitionHandler) GetActive(c *fiber.Ctx) error {
	competition, err := h.Competitions.Active(c.UserContext())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(competition)
}

func (h *CompetitionHandler) GetByID(c *fiber.Ctx) error {
	competition, err := h.Competitions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(competition)
}

func (h *CompetitionHandler) GetBySlug(c *fiber.Ctx) error {
	competition, err := h.Competitions.GetBySlug(c.UserContext(), c.Params("slug"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(competition)
}
