package game

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// GameTypeClickTarget is the timed click-target game shipped with the service.
const GameTypeClickTarget = "click-target"

// WeightedTarget is one entry of the spawn distribution.
type WeightedTarget struct {
	Type   TargetType
	Weight int
}

// Rules parameterise a game type: timings, play area and spawn distribution.
type Rules struct {
	GameType       string
	Duration       time.Duration
	Tick           time.Duration
	SpawnInterval  time.Duration
	TargetLifetime time.Duration
	Width          float64
	Height         float64
	Distribution   []WeightedTarget
}

// DefaultRules are the click-target rules: 30s, a spawn every 400ms,
// targets live 1.5s, common:bonus:penalty = 3:2:1.
var DefaultRules = Rules{
	GameType:       GameTypeClickTarget,
	Duration:       30 * time.Second,
	Tick:           time.Second,
	SpawnInterval:  400 * time.Millisecond,
	TargetLifetime: 1500 * time.Millisecond,
	Width:          100,
	Height:         100,
	Distribution: []WeightedTarget{
		{Type: TargetCommon, Weight: 3},
		{Type: TargetBonus, Weight: 2},
		{Type: TargetPenalty, Weight: 1},
	},
}

func (r Rules) Validate() error {
	if r.GameType == "" {
		return errors.New("game type is required")
	}
	if r.Duration <= 0 || r.Tick <= 0 || r.SpawnInterval <= 0 || r.TargetLifetime <= 0 {
		return fmt.Errorf("game %s: timings must be positive", r.GameType)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("game %s: play area must be positive", r.GameType)
	}
	if r.totalWeight() <= 0 {
		return fmt.Errorf("game %s: spawn distribution is empty", r.GameType)
	}
	return nil
}

func (r Rules) totalWeight() int {
	total := 0
	for _, w := range r.Distribution {
		if w.Weight > 0 {
			total += w.Weight
		}
	}
	return total
}

// pick maps n in [0, totalWeight) onto the distribution.
func (r Rules) pick(n int) TargetType {
	for _, w := range r.Distribution {
		if w.Weight <= 0 {
			continue
		}
		if n < w.Weight {
			return w.Type
		}
		n -= w.Weight
	}
	return r.Distribution[len(r.Distribution)-1].Type
}

// MaxSpawns is the number of targets a single session can ever produce.
func (r Rules) MaxSpawns() int {
	return int(r.Duration / r.SpawnInterval)
}

// MaxScore is the highest score a session can reach: every spawned target
// acquired and every one of them the best positive type in the distribution.
// Submissions above it cannot come from an honest session.
func (r Rules) MaxScore() int {
	best := 0
	for _, w := range r.Distribution {
		if w.Weight > 0 && Delta(w.Type) > best {
			best = Delta(w.Type)
		}
	}
	return r.MaxSpawns() * best
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Rules{GameTypeClickTarget: DefaultRules}
)

// register adds or replaces the rules for a game type.
func register(r Rules) error {
	if err := r.Validate(); err != nil {
		return err
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[r.GameType] = r
	return nil
}

// Lookup returns the rules registered for gameType.
func Lookup(gameType string) (Rules, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := registry[gameType]
	return r, ok
}

// Registered lists the known game types in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
