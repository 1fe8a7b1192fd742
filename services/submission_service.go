package services

import (
	"context"
	"fmt"
	"strings"

	"competition-service/game"
	"competition-service/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SubmissionService struct {
	DB          *gorm.DB
	Log         *logrus.Logger
	Clock       clockwork.Clock
	PreviewSize int
}

func NewSubmissionService(db *gorm.DB, log *logrus.Logger, clock clockwork.Clock, previewSize int) *SubmissionService {
	return &SubmissionService{DB: db, Log: log, Clock: clock, PreviewSize: previewSize}
}

type SubmitRequest struct {
	CompetitionID string `json:"competition_id"`
	Identity      string `json:"identity"`
	Score         int    `json:"score"`
	GameType      string `json:"game_type"`
	AccountRef    string `json:"account_ref,omitempty"`
}

// SubmitResult acknowledges an accepted submission. The standings fields are
// a best-effort preview and are left empty if they could not be computed.
type SubmitResult struct {
	Accepted     bool       `json:"accepted"`
	ScoreID      string     `json:"score_id"`
	PersonalBest int        `json:"personal_best,omitempty"`
	Rank         int        `json:"rank,omitempty"`
	TotalPlayers int        `json:"total_players,omitempty"`
	Preview      []Standing `json:"preview,omitempty"`
}

// Submit validates a finished session's result and stores it as a new row.
// Retries and duplicates simply add rows; ranking only looks at each
// identity's maximum.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.Score < 0 {
		return nil, validationf("score must be a non-negative integer")
	}
	identity, err := NormalizeIdentity(req.Identity)
	if err != nil {
		return nil, err
	}

	db := s.DB.WithContext(ctx)
	competition, err := loadCompetition(db, req.CompetitionID)
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	if !competition.OpenAt(now) {
		return nil, fmt.Errorf("%w: %s", ErrCompetitionClosed, competition.ID)
	}

	gameType := strings.TrimSpace(req.GameType)
	if !competition.HasGameType(gameType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGameType, gameType)
	}
	rules, ok := game.Lookup(gameType)
	if !ok {
		return nil, fmt.Errorf("%w: %q has no rules", ErrInvalidGameType, gameType)
	}
	if ceiling := rules.MaxScore(); req.Score > ceiling {
		s.Log.WithFields(logrus.Fields{
			"competition_id": competition.ID,
			"identity":       identity,
			"score":          req.Score,
			"max":            ceiling,
		}).Warn("🚫 implausible score rejected")
		return nil, fmt.Errorf("%w: %d exceeds %d for %s", ErrImplausibleScore, req.Score, ceiling, gameType)
	}

	row := &models.CompetitionScore{
		ID:            uuid.NewString(),
		CompetitionID: competition.ID,
		Identity:      identity,
		Score:         req.Score,
		GameType:      gameType,
		AccountRef:    strings.TrimSpace(req.AccountRef),
		CreatedAt:     now.UTC(),
	}
	if err := db.Create(row).Error; err != nil {
		return nil, fmt.Errorf("insert score: %w", err)
	}

	log := s.Log.WithFields(logrus.Fields{
		"competition_id": competition.ID,
		"identity":       identity,
		"score":          row.Score,
	})
	log.Info("🎯 score accepted")

	result := &SubmitResult{Accepted: true, ScoreID: row.ID}
	standings, err := standingsFor(db, competition.ID)
	if err != nil {
		log.WithError(err).Warn("⚠️ leaderboard preview unavailable")
		return result, nil
	}
	if mine, err := rankOf(standings, identity); err == nil {
		result.PersonalBest = mine.Score
		result.Rank = mine.Rank
		result.TotalPlayers = mine.TotalPlayers
	}
	if s.PreviewSize > 0 {
		result.Preview = truncate(standings, s.PreviewSize)
	}
	return result, nil
}
