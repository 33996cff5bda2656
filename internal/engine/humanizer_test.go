package engine

import (
	"math/rand"
	"testing"
)

func TestSelectCandidateSingleChoice(t *testing.T) {
	p, err := GetPreset("level8")
	if err != nil {
		t.Fatalf("GetPreset: %v", err)
	}
	candidates := []Candidate{
		{Move: "e2e4", EvalCP: 50},
		{Move: "d2d4", EvalCP: 40},
	}

	// level8 always plays the engine-best line with no eval jitter.
	for i := 0; i < 20; i++ {
		chosen, err := SelectCandidate(p, candidates, rand.New(rand.NewSource(int64(i))))
		if err != nil {
			t.Fatalf("SelectCandidate: %v", err)
		}
		if chosen.Move != "e2e4" || chosen.EvalCP != 50 {
			t.Fatalf("expected deterministic top pick, got %+v", chosen)
		}
	}
}

func TestSelectCandidateSpreadsAcrossChoices(t *testing.T) {
	p, err := GetPreset("level1")
	if err != nil {
		t.Fatalf("GetPreset: %v", err)
	}
	candidates := []Candidate{
		{Move: "e2e4", EvalCP: 50},
		{Move: "d2d4", EvalCP: 30},
		{Move: "g1f3", EvalCP: 10},
	}

	picked := make(map[string]int)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		chosen, err := SelectCandidate(p, candidates, r)
		if err != nil {
			t.Fatalf("SelectCandidate: %v", err)
		}
		picked[chosen.Move]++
	}
	if len(picked) != 3 {
		t.Fatalf("level1 should wander across all primary choices, got %v", picked)
	}
	if picked["e2e4"] < picked["g1f3"] {
		t.Fatalf("weights should still favor the top line, got %v", picked)
	}
}

func TestSelectCandidateNoiseBounds(t *testing.T) {
	p, err := GetPreset("level1")
	if err != nil {
		t.Fatalf("GetPreset: %v", err)
	}
	candidates := []Candidate{{Move: "e2e4", EvalCP: 100}}

	r := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		chosen, err := SelectCandidate(p, candidates, r)
		if err != nil {
			t.Fatalf("SelectCandidate: %v", err)
		}
		diff := chosen.EvalCP - 100
		if diff < -p.EvalNoise || diff > p.EvalNoise {
			t.Fatalf("noise %d outside +/-%d", diff, p.EvalNoise)
		}
	}
}

func TestSelectCandidateEmpty(t *testing.T) {
	p, err := GetPreset("level5")
	if err != nil {
		t.Fatalf("GetPreset: %v", err)
	}
	if _, err := SelectCandidate(p, nil, rand.New(rand.NewSource(1))); err == nil {
		t.Fatalf("expected error for empty candidates")
	}
}

func TestSaturatingAdd(t *testing.T) {
	if got := saturatingAdd(10, -30); got != -20 {
		t.Fatalf("saturatingAdd(10,-30) = %d", got)
	}
	const maxInt = int(^uint(0) >> 1)
	if got := saturatingAdd(maxInt, 5); got != maxInt {
		t.Fatalf("overflow should saturate, got %d", got)
	}
}
