package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"competition-service/game"
	"competition-service/models"

	"github.com/jonboulle/clockwork"
)

func newCompetitionService(t *testing.T) (*CompetitionService, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	return NewCompetitionService(setupTestDB(t), quietLogger(), clock), clock
}

func validRequest() CreateCompetitionRequest {
	return CreateCompetitionRequest{
		Name:       "Résumé Rush: March",
		StartTime:  testNow.Add(-time.Hour),
		EndTime:    testNow.Add(24 * time.Hour),
		MaxWinners: 3,
		Prize:      models.PrizeDescriptor{Title: "10 free generations"},
	}
}

func TestCreateCompetition(t *testing.T) {
	svc, _ := newCompetitionService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, admin, validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Slug != "resume-rush-march" {
		t.Errorf("slug = %q", c.Slug)
	}
	if !c.IsActive || !c.HasGameType(game.GameTypeClickTarget) {
		t.Errorf("defaults not applied: active=%v types=%s", c.IsActive, c.GameTypes)
	}

	again, err := svc.Create(ctx, admin, validRequest())
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if again.Slug == c.Slug || !strings.HasPrefix(again.Slug, "resume-rush-march-") {
		t.Errorf("duplicate slug = %q", again.Slug)
	}

	bySlug, err := svc.GetBySlug(ctx, c.Slug)
	if err != nil || bySlug.ID != c.ID {
		t.Fatalf("GetBySlug = %v, %v", bySlug, err)
	}
	if _, err := svc.GetBySlug(ctx, "nope"); !errors.Is(err, ErrCompetitionNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateCompetitionInactive(t *testing.T) {
	svc, _ := newCompetitionService(t)
	req := validRequest()
	off := false
	req.IsActive = &off

	c, err := svc.Create(context.Background(), admin, req)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := svc.Get(context.Background(), c.ID)
	if got.IsActive {
		t.Fatal("competition created inactive came back active")
	}
}

func TestCreateCompetitionValidation(t *testing.T) {
	svc, _ := newCompetitionService(t)

	tests := []struct {
		name   string
		mutate func(*CreateCompetitionRequest)
		want   error
	}{
		{"blank name", func(r *CreateCompetitionRequest) { r.Name = "  " }, ErrValidation},
		{"missing window", func(r *CreateCompetitionRequest) { r.StartTime = time.Time{} }, ErrValidation},
		{"end before start", func(r *CreateCompetitionRequest) { r.EndTime = r.StartTime.Add(-time.Minute) }, ErrValidation},
		{"no winners", func(r *CreateCompetitionRequest) { r.MaxWinners = 0 }, ErrValidation},
		{"negative prize", func(r *CreateCompetitionRequest) { r.PrizeCredits = -1 }, ErrValidation},
		{"unknown game", func(r *CreateCompetitionRequest) { r.GameTypes = []string{"tetris"} }, ErrInvalidGameType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			if _, err := svc.Create(context.Background(), admin, req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	player := PrincipalFromRoles("u1", nil, []string{"admin"})
	if _, err := svc.Create(context.Background(), player, validRequest()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestCreateCompetitionUnknownGameListsKnownTypes(t *testing.T) {
	svc, _ := newCompetitionService(t)
	req := validRequest()
	req.GameTypes = []string{"tetris"}

	_, err := svc.Create(context.Background(), admin, req)
	if !errors.Is(err, ErrInvalidGameType) || !strings.Contains(err.Error(), game.GameTypeClickTarget) {
		t.Fatalf("err = %v, want the registered types listed", err)
	}
}

func TestActiveCompetition(t *testing.T) {
	svc, _ := newCompetitionService(t)
	ctx := context.Background()

	if _, err := svc.Active(ctx); !errors.Is(err, ErrCompetitionNotFound) {
		t.Fatalf("err = %v, want ErrCompetitionNotFound", err)
	}

	seedCompetition(t, svc.DB, withWindow(testNow.Add(-time.Hour), testNow.Add(48*time.Hour)))
	soon := seedCompetition(t, svc.DB, withWindow(testNow.Add(-time.Hour), testNow.Add(2*time.Hour)))
	seedCompetition(t, svc.DB, withWindow(testNow.Add(-time.Hour), testNow.Add(time.Hour)), inactive())
	seedCompetition(t, svc.DB, withWindow(testNow.Add(time.Hour), testNow.Add(90*time.Minute)))

	got, err := svc.Active(ctx)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if got.ID != soon.ID {
		t.Fatalf("Active = %s, want the open competition ending soonest", got.Name)
	}
}

func TestSetActiveAndCloseExpired(t *testing.T) {
	svc, clock := newCompetitionService(t)
	ctx := context.Background()
	short := seedCompetition(t, svc.DB, withWindow(testNow.Add(-time.Hour), testNow.Add(time.Minute)))
	long := seedCompetition(t, svc.DB, withWindow(testNow.Add(-time.Hour), testNow.Add(time.Hour)))

	c, err := svc.SetActive(ctx, admin, long.ID, false)
	if err != nil || c.IsActive {
		t.Fatalf("SetActive = %+v, %v", c, err)
	}
	if _, err := svc.SetActive(ctx, admin, long.ID, true); err != nil {
		t.Fatal(err)
	}

	if n, err := svc.CloseExpired(ctx); err != nil || n != 0 {
		t.Fatalf("CloseExpired before end = %d, %v", n, err)
	}
	clock.Advance(5 * time.Minute)
	n, err := svc.CloseExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CloseExpired = %d, %v; want 1", n, err)
	}
	got, _ := svc.Get(ctx, short.ID)
	if got.IsActive {
		t.Fatal("expired competition still active")
	}
	got, _ = svc.Get(ctx, long.ID)
	if !got.IsActive {
		t.Fatal("running competition was closed")
	}

	active, _ := svc.List(ctx, true)
	if len(active) != 1 {
		t.Fatalf("active list = %d", len(active))
	}
}
