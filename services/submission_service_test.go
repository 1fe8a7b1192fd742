package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"competition-service/game"
	"competition-service/models"
)

func TestSubmitValidationOrder(t *testing.T) {
	f := newWinnerFixture(t)
	open := seedCompetition(t, f.db)
	closed := seedCompetition(t, f.db, withWindow(testNow.Add(-2*time.Hour), testNow.Add(-time.Minute)))
	notStarted := seedCompetition(t, f.db, withWindow(testNow.Add(time.Minute), testNow.Add(time.Hour)))
	disabled := seedCompetition(t, f.db, inactive())

	ceiling := game.DefaultRules.MaxScore()

	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"negative score before anything else", SubmitRequest{CompetitionID: "missing", Identity: "nope", Score: -1}, ErrValidation},
		{"malformed identity", SubmitRequest{CompetitionID: open.ID, Identity: "not-an-email", Score: 10}, ErrValidation},
		{"display name form rejected", SubmitRequest{CompetitionID: open.ID, Identity: "Ada <ada@example.com>", Score: 10}, ErrValidation},
		{"unknown competition", SubmitRequest{CompetitionID: "missing", Identity: "ada@example.com", Score: 10}, ErrCompetitionNotFound},
		{"ended", SubmitRequest{CompetitionID: closed.ID, Identity: "ada@example.com", Score: 10, GameType: game.GameTypeClickTarget}, ErrCompetitionClosed},
		{"not started", SubmitRequest{CompetitionID: notStarted.ID, Identity: "ada@example.com", Score: 10, GameType: game.GameTypeClickTarget}, ErrCompetitionClosed},
		{"inactive", SubmitRequest{CompetitionID: disabled.ID, Identity: "ada@example.com", Score: 10, GameType: game.GameTypeClickTarget}, ErrCompetitionClosed},
		{"unregistered game type", SubmitRequest{CompetitionID: open.ID, Identity: "ada@example.com", Score: 10, GameType: "snake"}, ErrInvalidGameType},
		{"implausible", SubmitRequest{CompetitionID: open.ID, Identity: "ada@example.com", Score: ceiling + 1, GameType: game.GameTypeClickTarget}, ErrImplausibleScore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.submitter.Submit(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	var count int64
	f.db.Model(&models.CompetitionScore{}).Count(&count)
	if count != 0 {
		t.Fatalf("%d rows persisted by rejected submissions", count)
	}
}

func TestImplausibleScoreIsValidationError(t *testing.T) {
	if !errors.Is(ErrImplausibleScore, ErrValidation) {
		t.Fatal("ErrImplausibleScore must be a validation error")
	}
}

func TestSubmitAcceptsAndRanks(t *testing.T) {
	f := newWinnerFixture(t)
	c := seedCompetition(t, f.db)
	seedScore(t, f.db, c.ID, "bob@example.com", 50, testNow.Add(-10*time.Minute))
	ctx := context.Background()

	res, err := f.submitter.Submit(ctx, SubmitRequest{
		CompetitionID: c.ID,
		Identity:      "  Ada@Example.COM ",
		Score:         40,
		GameType:      game.GameTypeClickTarget,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Accepted || res.ScoreID == "" {
		t.Fatalf("result = %+v", res)
	}
	if res.Rank != 2 || res.TotalPlayers != 2 || res.PersonalBest != 40 {
		t.Fatalf("rank preview = %+v", res)
	}

	res, err = f.submitter.Submit(ctx, SubmitRequest{CompetitionID: c.ID, Identity: "ada@example.com", Score: 70, GameType: game.GameTypeClickTarget})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.PersonalBest != 70 || res.Rank != 1 {
		t.Fatalf("personal best must be the max, got %+v", res)
	}
	if len(res.Preview) != 2 || res.Preview[0].Identity != "ada@example.com" {
		t.Fatalf("preview = %+v", res.Preview)
	}

	var rows []models.CompetitionScore
	f.db.Where("identity = ?", "ada@example.com").Find(&rows)
	if len(rows) != 2 {
		t.Fatalf("rows for ada = %d, want 2 (one per accepted submission)", len(rows))
	}
}

func TestSubmitAtMaximumScore(t *testing.T) {
	f := newWinnerFixture(t)
	c := seedCompetition(t, f.db)
	_, err := f.submitter.Submit(context.Background(), SubmitRequest{
		CompetitionID: c.ID,
		Identity:      "9f1c2f7e-52a4-4b8e-9b43-0cfb6c1f8a10",
		Score:         game.DefaultRules.MaxScore(),
		GameType:      game.GameTypeClickTarget,
	})
	if err != nil {
		t.Fatalf("a perfect session must be accepted: %v", err)
	}
}

func TestSubmitAfterEndPersistsNothing(t *testing.T) {
	f := newWinnerFixture(t)
	c := seedCompetition(t, f.db)
	f.clock.Advance(2 * time.Hour)

	_, err := f.submitter.Submit(context.Background(), SubmitRequest{CompetitionID: c.ID, Identity: "ada@example.com", Score: 10, GameType: game.GameTypeClickTarget})
	if !errors.Is(err, ErrCompetitionClosed) {
		t.Fatalf("err = %v, want ErrCompetitionClosed", err)
	}
	if rows := f.scoreRows(t, c.ID); len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
}
