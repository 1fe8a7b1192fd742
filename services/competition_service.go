package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"competition-service/game"
	"competition-service/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CompetitionService struct {
	DB    *gorm.DB
	Log   *logrus.Logger
	Clock clockwork.Clock
}

func NewCompetitionService(db *gorm.DB, log *logrus.Logger, clock clockwork.Clock) *CompetitionService {
	return &CompetitionService{DB: db, Log: log, Clock: clock}
}

// CreateCompetitionRequest is the admin payload for a new competition.
type CreateCompetitionRequest struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	StartTime    time.Time              `json:"start_time"`
	EndTime      time.Time              `json:"end_time"`
	MaxWinners   int                    `json:"max_winners"`
	Prize        models.PrizeDescriptor `json:"prize"`
	PrizeCredits int                    `json:"prize_credits"`
	GameTypes    []string               `json:"game_types"`
	IsActive     *bool                  `json:"is_active,omitempty"`
}

func (r *CreateCompetitionRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return validationf("name is required")
	}
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return validationf("start_time and end_time are required")
	}
	if !r.EndTime.After(r.StartTime) {
		return validationf("end_time must be after start_time")
	}
	if r.MaxWinners <= 0 {
		return validationf("max_winners must be a positive integer")
	}
	if r.PrizeCredits < 0 {
		return validationf("prize_credits must not be negative")
	}
	if len(r.GameTypes) == 0 {
		r.GameTypes = []string{game.GameTypeClickTarget}
	}
	for _, gt := range r.GameTypes {
		if _, ok := game.Lookup(gt); !ok {
			return fmt.Errorf("%w: %q, known types: %s", ErrInvalidGameType, gt, strings.Join(game.Registered(), ", "))
		}
	}
	return nil
}

func (s *CompetitionService) Create(ctx context.Context, actor Actor, req CreateCompetitionRequest) (*models.Competition, error) {
	if err := authorize(actor, CapabilityManageCompetitions); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	prize, err := json.Marshal(req.Prize)
	if err != nil {
		return nil, fmt.Errorf("encode prize: %w", err)
	}
	gameTypes, err := json.Marshal(req.GameTypes)
	if err != nil {
		return nil, fmt.Errorf("encode game types: %w", err)
	}

	id := uuid.NewString()
	competitionSlug, err := s.uniqueSlug(ctx, req.Name, id)
	if err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	competition := &models.Competition{
		ID:           id,
		Name:         req.Name,
		Slug:         competitionSlug,
		Description:  req.Description,
		StartTime:    req.StartTime.UTC(),
		EndTime:      req.EndTime.UTC(),
		MaxWinners:   req.MaxWinners,
		Prize:        datatypes.JSON(prize),
		PrizeCredits: req.PrizeCredits,
		GameTypes:    datatypes.JSON(gameTypes),
		IsActive:     active,
	}
	if err := s.DB.WithContext(ctx).Create(competition).Error; err != nil {
		return nil, fmt.Errorf("create competition: %w", err)
	}

	s.Log.WithFields(logrus.Fields{
		"competition_id": competition.ID,
		"slug":           competition.Slug,
		"actor":          actor.ActorID(),
	}).Info("🏁 competition created")
	return competition, nil
}

func (s *CompetitionService) uniqueSlug(ctx context.Context, name, id string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "competition"
	}
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Competition{}).Where("slug = ?", base).Count(&count).Error; err != nil {
		return "", fmt.Errorf("check slug: %w", err)
	}
	if count == 0 {
		return base, nil
	}
	return base + "-" + id[:8], nil
}

// Get loads a competition by id.
func (s *CompetitionService) Get(ctx context.Context, id string) (*models.Competition, error) {
	return loadCompetition(s.DB.WithContext(ctx), id)
}

func (s *CompetitionService) GetBySlug(ctx context.Context, competitionSlug string) (*models.Competition, error) {
	var c models.Competition
	if err := s.DB.WithContext(ctx).First(&c, "slug = ?", competitionSlug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCompetitionNotFound, competitionSlug)
		}
		return nil, fmt.Errorf("load competition: %w", err)
	}
	return &c, nil
}

func (s *CompetitionService) List(ctx context.Context, activeOnly bool) ([]models.Competition, error) {
	var competitions []models.Competition
	q := s.DB.WithContext(ctx).Order("start_time DESC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&competitions).Error; err != nil {
		return nil, fmt.Errorf("list competitions: %w", err)
	}
	return competitions, nil
}

// Active returns the open competition ending soonest.
func (s *CompetitionService) Active(ctx context.Context) (*models.Competition, error) {
	competitions, err := s.List(ctx, true)
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	var open []models.Competition
	for _, c := range competitions {
		if c.OpenAt(now) {
			open = append(open, c)
		}
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("%w: no active competition", ErrCompetitionNotFound)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].EndTime.Before(open[j].EndTime) })
	return &open[0], nil
}

func (s *CompetitionService) SetActive(ctx context.Context, actor Actor, id string, active bool) (*models.Competition, error) {
	if err := authorize(actor, CapabilityManageCompetitions); err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	c, err := loadCompetition(db, id)
	if err != nil {
		return nil, err
	}
	if err := db.Model(c).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("update competition: %w", err)
	}
	c.IsActive = active
	s.Log.WithFields(logrus.Fields{"competition_id": id, "active": active, "actor": actor.ActorID()}).
		Info("🔁 competition activation changed")
	return c, nil
}

// CloseExpired deactivates competitions whose end time has passed and
// returns how many were closed.
func (s *CompetitionService) CloseExpired(ctx context.Context) (int, error) {
	competitions, err := s.List(ctx, true)
	if err != nil {
		return 0, err
	}
	now := s.Clock.Now()
	var ids []string
	for _, c := range competitions {
		if now.After(c.EndTime) {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.DB.WithContext(ctx).Model(&models.Competition{}).
		Where("id IN ?", ids).
		Update("is_active", false).Error; err != nil {
		return 0, fmt.Errorf("close competitions: %w", err)
	}
	return len(ids), nil
}

func loadCompetition(db *gorm.DB, id string) (*models.Competition, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrCompetitionNotFound)
	}
	var c models.Competition
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCompetitionNotFound, id)
		}
		return nil, fmt.Errorf("load competition: %w", err)
	}
	return &c, nil
}
