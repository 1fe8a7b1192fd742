package game

import (
	"math/rand/v2"
	"testing"
)

func TestFinalScore(t *testing.T) {
	tests := []struct {
		name     string
		acquired []TargetType
		want     int
	}{
		{name: "empty", want: 0},
		{name: "mixed sequence", acquired: []TargetType{TargetCommon, TargetCommon, TargetBonus, TargetPenalty, TargetCommon}, want: 40},
		{name: "penalty first clamps at zero", acquired: []TargetType{TargetPenalty, TargetCommon}, want: 10},
		{name: "penalty after common", acquired: []TargetType{TargetCommon, TargetPenalty}, want: 0},
		{name: "bonus absorbs penalty", acquired: []TargetType{TargetBonus, TargetPenalty}, want: 10},
		{name: "unknown type ignored", acquired: []TargetType{"golden", TargetCommon}, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FinalScore(tt.acquired); got != tt.want {
				t.Errorf("FinalScore(%v) = %d, want %d", tt.acquired, got, tt.want)
			}
		})
	}
}

func TestAccumulatorNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	types := []TargetType{TargetCommon, TargetBonus, TargetPenalty}

	for run := 0; run < 200; run++ {
		var acc Accumulator
		want := 0
		for i := 0; i < 50; i++ {
			tt := types[rng.IntN(len(types))]
			want += Delta(tt)
			if want < 0 {
				want = 0
			}
			if got := acc.Apply(tt); got != want {
				t.Fatalf("run %d step %d: Apply = %d, want %d", run, i, got, want)
			}
			if acc.Total() < 0 {
				t.Fatalf("run %d step %d: negative total %d", run, i, acc.Total())
			}
		}
	}
}
