package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"competition-service/game"
	"competition-service/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var admin = PrincipalFromRoles("admin-1", []string{"admin"}, []string{"admin"})

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "competitions.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&models.Competition{}, &models.CompetitionScore{}, &models.CreditAccount{}, &models.Lease{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

type competitionOpt func(*models.Competition)

func withMaxWinners(n int) competitionOpt {
	return func(c *models.Competition) { c.MaxWinners = n }
}

func withWindow(start, end time.Time) competitionOpt {
	return func(c *models.Competition) { c.StartTime, c.EndTime = start, end }
}

func inactive() competitionOpt {
	return func(c *models.Competition) { c.IsActive = false }
}

func withPrizeCredits(n int) competitionOpt {
	return func(c *models.Competition) { c.PrizeCredits = n }
}

func seedCompetition(t *testing.T, db *gorm.DB, opts ...competitionOpt) *models.Competition {
	t.Helper()
	types, _ := json.Marshal([]string{game.GameTypeClickTarget})
	id := uuid.NewString()
	c := &models.Competition{
		ID:         id,
		Name:       "Spring Sprint",
		Slug:       "spring-sprint-" + id[:8],
		StartTime:  testNow.Add(-time.Hour),
		EndTime:    testNow.Add(time.Hour),
		MaxWinners: 3,
		Prize:      datatypes.JSON(`{"title":"10 free generations"}`),
		GameTypes:  datatypes.JSON(types),
		IsActive:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed competition: %v", err)
	}
	return c
}

func seedScore(t *testing.T, db *gorm.DB, competitionID, identity string, score int, at time.Time) *models.CompetitionScore {
	t.Helper()
	row := &models.CompetitionScore{
		ID:            uuid.NewString(),
		CompetitionID: competitionID,
		Identity:      identity,
		Score:         score,
		GameType:      game.GameTypeClickTarget,
		CreatedAt:     at,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed score: %v", err)
	}
	return row
}

type grant struct {
	account string
	amount  int64
}

// fakeLedger behaves like the usage service: a repeated idempotency key is
// acknowledged without a second grant.
type fakeLedger struct {
	mu          sync.Mutex
	allowances  map[string]int64
	readErr     map[string]error
	increaseErr map[string]error
	lostReply   map[string]bool // apply the grant, then report a failure once
	applied     map[string]bool
	grants      []grant
	onIncrease  func()
}

func newFakeLedger(accounts ...string) *fakeLedger {
	l := &fakeLedger{
		allowances:  map[string]int64{},
		readErr:     map[string]error{},
		increaseErr: map[string]error{},
		lostReply:   map[string]bool{},
		applied:     map[string]bool{},
	}
	for _, a := range accounts {
		l.allowances[a] = 0
	}
	return l
}

var errUnknownAccount = errors.New("account not found")

func (l *fakeLedger) ReadAllowance(_ context.Context, ref string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readErr[ref]; err != nil {
		return 0, err
	}
	v, ok := l.allowances[ref]
	if !ok {
		return 0, fmt.Errorf("%w: %s", errUnknownAccount, ref)
	}
	return v, nil
}

func (l *fakeLedger) IncreaseAllowance(_ context.Context, ref string, amount int64, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.onIncrease != nil {
		defer l.onIncrease()
	}
	if err := l.increaseErr[ref]; err != nil {
		return err
	}
	if key != "" && l.applied[key] {
		return nil
	}
	l.applied[key] = true
	l.allowances[ref] += amount
	l.grants = append(l.grants, grant{account: ref, amount: amount})
	if l.lostReply[ref] {
		delete(l.lostReply, ref)
		return errors.New("usage service: context deadline exceeded")
	}
	return nil
}

func (l *fakeLedger) grantCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.grants)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return p.err
}

func (p *fakePublisher) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == key {
			n++
		}
	}
	return n
}

type fakeArchive struct {
	keys []string
	err  error
}

func (a *fakeArchive) ArchiveJSON(_ context.Context, key string, v any) (string, error) {
	if _, err := json.Marshal(v); err != nil {
		return "", err
	}
	a.keys = append(a.keys, key)
	if a.err != nil {
		return "", a.err
	}
	return "https://cdn.example.com/" + key, nil
}

type winnerFixture struct {
	db        *gorm.DB
	clock     *clockwork.FakeClock
	ledger    *fakeLedger
	events    *fakePublisher
	archive   *fakeArchive
	leases    *Leases
	winners   *WinnerService
	submitter *SubmissionService
}

func newWinnerFixture(t *testing.T, accounts ...string) *winnerFixture {
	t.Helper()
	db := setupTestDB(t)
	clock := clockwork.NewFakeClockAt(testNow)
	f := &winnerFixture{
		db:      db,
		clock:   clock,
		ledger:  newFakeLedger(accounts...),
		events:  &fakePublisher{},
		archive: &fakeArchive{},
	}
	f.leases = newTestLeases(db, clock)
	f.winners = NewWinnerService(db, quietLogger(), clock, f.ledger, f.events, f.archive, f.leases, 10)
	f.submitter = NewSubmissionService(db, quietLogger(), clock, 5)
	return f
}

func (f *winnerFixture) scoreRows(t *testing.T, competitionID string) []models.CompetitionScore {
	t.Helper()
	var rows []models.CompetitionScore
	if err := f.db.Where("competition_id = ?", competitionID).Order("identity").Order("score").Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	return rows
}

func newTestLeases(db *gorm.DB, clock clockwork.Clock) *Leases {
	l := NewLeases(db, clock, quietLogger(), time.Minute)
	l.Poll = 2 * time.Millisecond
	return l
}
