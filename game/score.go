package game

// TargetType is the kind of clickable target spawned during a session.
type TargetType string

const (
	TargetCommon  TargetType = "common"
	TargetBonus   TargetType = "bonus"
	TargetPenalty TargetType = "penalty"
)

const (
	CommonDelta  = 10
	BonusDelta   = 25
	PenaltyDelta = -15
)

// Delta returns the score change for acquiring a target of type t.
// Unknown types score nothing.
func Delta(t TargetType) int {
	switch t {
	case TargetCommon:
		return CommonDelta
	case TargetBonus:
		return BonusDelta
	case TargetPenalty:
		return PenaltyDelta
	}
	return 0
}

// Accumulator keeps a running score that never drops below zero.
// The zero value is ready to use.
type Accumulator struct {
	total int
}

// Apply adds the delta for t, clamps at 0 and returns the new total.
func (a *Accumulator) Apply(t TargetType) int {
	a.total += Delta(t)
	if a.total < 0 {
		a.total = 0
	}
	return a.total
}

func (a *Accumulator) Total() int {
	return a.total
}

// FinalScore replays an ordered sequence of acquisitions.
func FinalScore(acquired []TargetType) int {
	var acc Accumulator
	for _, t := range acquired {
		acc.Apply(t)
	}
	return acc.Total()
}
