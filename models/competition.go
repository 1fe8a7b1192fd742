// models/competition.go
package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Competition is a time-boxed promotional event around the mini-game.
type Competition struct {
	ID               string         `json:"id" gorm:"primaryKey"`
	Name             string         `json:"name" gorm:"not null"`
	Slug             string         `json:"slug" gorm:"uniqueIndex;not null"`
	Description      string         `json:"description"`
	StartTime        time.Time      `json:"start_time" gorm:"not null"`
	EndTime          time.Time      `json:"end_time" gorm:"not null"`
	MaxWinners       int            `json:"max_winners" gorm:"not null;default:1"`
	Prize            datatypes.JSON `json:"prize"`                          // {"title": "...", "description": "..."}
	PrizeCredits     int            `json:"prize_credits" gorm:"default:0"` // 0 = configured default
	GameTypes        datatypes.JSON `json:"game_types"`                     // ["click-target", ...]
	IsActive         bool           `json:"is_active" gorm:"not null;index"`
	WinnersAnnounced bool           `json:"winners_announced" gorm:"default:false"` // false -> true only
	AnnouncedAt      *time.Time     `json:"announced_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"autoUpdateTime"`

	Scores []CompetitionScore `json:"-" gorm:"foreignKey:CompetitionID"`
}

// PrizeDescriptor is the decoded form of Competition.Prize.
type PrizeDescriptor struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// GameTypeList decodes GameTypes. A malformed column yields no types.
func (c *Competition) GameTypeList() []string {
	var types []string
	if len(c.GameTypes) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.GameTypes, &types); err != nil {
		return nil
	}
	return types
}

func (c *Competition) HasGameType(gameType string) bool {
	for _, t := range c.GameTypeList() {
		if t == gameType {
			return true
		}
	}
	return false
}

// OpenAt reports whether submissions are accepted at t.
func (c *Competition) OpenAt(t time.Time) bool {
	return c.IsActive && !t.Before(c.StartTime) && !t.After(c.EndTime)
}

// CompetitionScore is one completed game submission. Rows are only ever
// inserted by the submission path; the winner workflow flips IsWinner and
// PrizeClaimed. ClaimToken and ClaimExpiresAt (unix ms) reserve a row for
// the fulfillment run that is granting it; PrizeClaimed never goes back to
// false.
type CompetitionScore struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	CompetitionID  string     `json:"competition_id" gorm:"not null;index:idx_scores_competition_identity"`
	Identity       string     `json:"identity" gorm:"not null;index:idx_scores_competition_identity"`
	Score          int        `json:"score" gorm:"not null;check:score >= 0"`
	GameType       string     `json:"game_type" gorm:"not null"`
	IsWinner       bool       `json:"is_winner" gorm:"default:false;index"`
	PrizeClaimed   bool       `json:"prize_claimed" gorm:"default:false"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	ClaimToken     string     `json:"-" gorm:"not null;default:''"`
	ClaimExpiresAt int64      `json:"-" gorm:"not null;default:0"`
	AccountRef     string     `json:"account_ref,omitempty"` // linked account for fulfillment
	CreatedAt      time.Time  `json:"created_at"`
}
