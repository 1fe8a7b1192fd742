package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"competition-service/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// Standing is one identity's position: its personal best and when it was
// first reached.
type Standing struct {
	Rank      int       `json:"rank"`
	Identity  string    `json:"identity"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

type IdentityRank struct {
	Identity     string `json:"identity"`
	Score        int    `json:"score"`
	Rank         int    `json:"rank"`
	TotalPlayers int    `json:"total_players"`
}

// RankStandings reduces score rows to one standing per identity (its maximum
// score, dated by the earliest row reaching it) and orders them by score
// descending, then earliest achiever. Ranks are 1..n without gaps.
func RankStandings(rows []models.CompetitionScore) []Standing {
	best := make(map[string]*Standing, len(rows))
	for _, r := range rows {
		cur, ok := best[r.Identity]
		switch {
		case !ok:
			best[r.Identity] = &Standing{Identity: r.Identity, Score: r.Score, CreatedAt: r.CreatedAt}
		case r.Score > cur.Score:
			cur.Score = r.Score
			cur.CreatedAt = r.CreatedAt
		case r.Score == cur.Score && r.CreatedAt.Before(cur.CreatedAt):
			cur.CreatedAt = r.CreatedAt
		}
	}

	out := make([]Standing, 0, len(best))
	for _, st := range best {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Identity < out[j].Identity
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

type LeaderboardService struct {
	DB  *gorm.DB
	Log *logrus.Logger
}

func NewLeaderboardService(db *gorm.DB, log *logrus.Logger) *LeaderboardService {
	return &LeaderboardService{DB: db, Log: log}
}

// GetLeaderboard returns the top limit standings of a competition.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, competitionID string, limit int) ([]Standing, error) {
	db := s.DB.WithContext(ctx)
	if _, err := loadCompetition(db, competitionID); err != nil {
		return nil, err
	}
	standings, err := standingsFor(db, competitionID)
	if err != nil {
		return nil, err
	}
	return truncate(standings, clampLimit(limit)), nil
}

// GetIdentityRank places identity within the full, untruncated ordering.
func (s *LeaderboardService) GetIdentityRank(ctx context.Context, competitionID, identity string) (*IdentityRank, error) {
	id, err := NormalizeIdentity(identity)
	if err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	if _, err := loadCompetition(db, competitionID); err != nil {
		return nil, err
	}
	standings, err := standingsFor(db, competitionID)
	if err != nil {
		return nil, err
	}
	return rankOf(standings, id)
}

func rankOf(standings []Standing, identity string) (*IdentityRank, error) {
	for _, st := range standings {
		if st.Identity == identity {
			return &IdentityRank{
				Identity:     identity,
				Score:        st.Score,
				Rank:         st.Rank,
				TotalPlayers: len(standings),
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrIdentityNotRanked, identity)
}

func standingsFor(db *gorm.DB, competitionID string) ([]Standing, error) {
	var rows []models.CompetitionScore
	if err := db.Model(&models.CompetitionScore{}).
		Select("identity", "score", "created_at").
		Where("competition_id = ?", competitionID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	return RankStandings(rows), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}

func truncate(standings []Standing, limit int) []Standing {
	if len(standings) > limit {
		return standings[:limit]
	}
	return standings
}
