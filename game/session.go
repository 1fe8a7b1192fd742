package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// State of a game session.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateEnded     State = "ended"
	StateSubmitted State = "submitted"
)

var (
	ErrAlreadyStarted = errors.New("game: session already started")
	ErrNotEnded       = errors.New("game: session has not ended")
)

// Target is a clickable object alive on the board.
type Target struct {
	ID        string     `json:"id"`
	Type      TargetType `json:"type"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	SpawnedAt time.Time  `json:"spawned_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Result is the frozen outcome of an ended session.
type Result struct {
	GameType string             `json:"game_type"`
	Score    int                `json:"score"`
	Spawned  int                `json:"spawned"`
	Acquired map[TargetType]int `json:"acquired"`
}

// Snapshot is a read-only view of a session for rendering.
type Snapshot struct {
	State     State         `json:"state"`
	Remaining time.Duration `json:"remaining"`
	Score     int           `json:"score"`
	Targets   []Target      `json:"targets"`
}

// Session is one play-through. The countdown and the spawner are two
// independent periodic jobs on a private scheduler; both, along with user
// acquisitions, mutate the target set only under mu and only through
// removeTarget, so acquiring and expiring the same target can never score twice.
type Session struct {
	mu        sync.Mutex
	rules     Rules
	clock     clockwork.Clock
	rng       *rand.Rand
	state     State
	remaining time.Duration
	targets   map[string]*Target
	acc       Accumulator
	spawned   int
	acquired  map[TargetType]int
	sched     gocron.Scheduler
	done      chan struct{}
	onEnd     func(Result)
}

type Option func(*Session)

// WithClock drives the session from c instead of the wall clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithRand makes target placement and types reproducible.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rng = r }
}

// WithOnEnd registers a callback invoked once, outside the session lock,
// when the countdown reaches zero.
func WithOnEnd(fn func(Result)) Option {
	return func(s *Session) { s.onEnd = fn }
}

func NewSession(rules Rules, opts ...Option) *Session {
	s := &Session{
		rules:     rules,
		clock:     clockwork.NewRealClock(),
		state:     StateIdle,
		remaining: rules.Duration,
		targets:   make(map[string]*Target),
		acquired:  make(map[TargetType]int),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		seed := uint64(s.clock.Now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return s
}

// Start moves Idle -> Running and starts the countdown and spawn jobs.
func (s *Session) Start() error {
	if err := s.begin(); err != nil {
		return err
	}

	sched, err := s.newScheduler()
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.sched = sched
	s.mu.Unlock()
	sched.Start()
	return nil
}

func (s *Session) newScheduler() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return nil, fmt.Errorf("game: create scheduler: %w", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(s.rules.Tick),
		gocron.NewTask(s.tick),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("game: schedule countdown: %w", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(s.rules.SpawnInterval),
		gocron.NewTask(s.spawn),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("game: schedule spawner: %w", err)
	}
	return sched, nil
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrAlreadyStarted
	}
	s.state = StateRunning
	return nil
}

// tick is the countdown job.
func (s *Session) tick() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.remaining -= s.rules.Tick
	s.sweepExpired()
	if s.remaining > 0 {
		s.mu.Unlock()
		return
	}
	s.remaining = 0
	result := s.endLocked()
	sched := s.sched
	s.mu.Unlock()

	// Shutdown waits for running jobs, and this is one of them.
	if sched != nil {
		go func() { _ = sched.Shutdown() }()
	}
	if s.onEnd != nil {
		s.onEnd(result)
	}
}

func (s *Session) endLocked() Result {
	s.state = StateEnded
	for id := range s.targets {
		s.removeTarget(id)
	}
	close(s.done)
	return s.resultLocked()
}

// spawn is the spawner job.
func (s *Session) spawn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || s.spawned >= s.rules.MaxSpawns() {
		return
	}
	s.sweepExpired()

	now := s.clock.Now()
	t := &Target{
		ID:        uuid.NewString(),
		Type:      s.rules.pick(s.rng.IntN(s.rules.totalWeight())),
		X:         s.rng.Float64() * s.rules.Width,
		Y:         s.rng.Float64() * s.rules.Height,
		SpawnedAt: now,
		ExpiresAt: now.Add(s.rules.TargetLifetime),
	}
	s.targets[t.ID] = t
	s.spawned++
}

// sweepExpired drops targets whose lifetime is over. Expiry never scores.
func (s *Session) sweepExpired() {
	now := s.clock.Now()
	for id, t := range s.targets {
		if !now.Before(t.ExpiresAt) {
			s.removeTarget(id)
		}
	}
}

// removeTarget is the only way a target leaves the set. It reports whether
// the target was still present; a second removal of the same id is a no-op.
func (s *Session) removeTarget(id string) (*Target, bool) {
	t, ok := s.targets[id]
	if !ok {
		return nil, false
	}
	delete(s.targets, id)
	return t, true
}

// Acquire handles a click on target id. It returns the new score and whether
// the click scored. Clicks on unknown, expired or already acquired targets,
// or outside the Running state, are ignored.
func (s *Session) Acquire(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return s.acc.Total(), false
	}
	t, ok := s.removeTarget(id)
	if !ok {
		return s.acc.Total(), false
	}
	if !s.clock.Now().Before(t.ExpiresAt) {
		return s.acc.Total(), false
	}
	s.acquired[t.Type]++
	return s.acc.Apply(t.Type), true
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the final outcome once the session has ended.
func (s *Session) Result() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEnded && s.state != StateSubmitted {
		return Result{}, ErrNotEnded
	}
	return s.resultLocked(), nil
}

func (s *Session) resultLocked() Result {
	acquired := make(map[TargetType]int, len(s.acquired))
	for k, v := range s.acquired {
		acquired[k] = v
	}
	return Result{
		GameType: s.rules.GameType,
		Score:    s.acc.Total(),
		Spawned:  s.spawned,
		Acquired: acquired,
	}
}

// MarkSubmitted records that the result was accepted. A session whose
// submission failed stays Ended and can be submitted again.
func (s *Session) MarkSubmitted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEnded {
		return fmt.Errorf("game: cannot submit from state %s", s.state)
	}
	s.state = StateSubmitted
	return nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	targets := make([]Target, 0, len(s.targets))
	for _, t := range s.targets {
		if now.Before(t.ExpiresAt) {
			targets = append(targets, *t)
		}
	}
	return Snapshot{
		State:     s.state,
		Remaining: s.remaining,
		Score:     s.acc.Total(),
		Targets:   targets,
	}
}
