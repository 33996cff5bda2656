package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DifficultyPreset maps a difficulty level to engine options, search
// limits, and the candidate-selection weights the humanizer draws from.
type DifficultyPreset struct {
	Name             string
	SkillLevel       int
	Elo              int
	Threads          int
	HashMB           int
	MoveTimeMillis   int
	NodeCap          int
	DepthCap         int
	MultiPV          int
	PrimaryChoices   int
	CandidateWeights []float64
	EvalNoise        int
}

const defaultThreads = 2

// DefaultLevel applies when neither a stored game nor a launch flag
// names a difficulty.
const DefaultLevel = "level4"

var presetMu sync.RWMutex

var DefaultPresets = map[string]DifficultyPreset{
	"level1": {
		Name:             "level1",
		SkillLevel:       0,
		Elo:              600,
		Threads:          defaultThreads,
		HashMB:           16,
		MoveTimeMillis:   20,
		NodeCap:          0,
		DepthCap:         5,
		MultiPV:          5,
		PrimaryChoices:   3,
		CandidateWeights: []float64{0.5, 0.3, 0.2},
		EvalNoise:        80,
	},
	"level2": {
		Name:             "level2",
		SkillLevel:       0,
		Elo:              700,
		Threads:          defaultThreads,
		HashMB:           16,
		MoveTimeMillis:   60,
		NodeCap:          0,
		DepthCap:         6,
		MultiPV:          5,
		PrimaryChoices:   3,
		CandidateWeights: []float64{0.6, 0.3, 0.1},
		EvalNoise:        60,
	},
	"level3": {
		Name:             "level3",
		SkillLevel:       1,
		Elo:              800,
		Threads:          defaultThreads,
		HashMB:           24,
		MoveTimeMillis:   80,
		NodeCap:          0,
		DepthCap:         8,
		MultiPV:          5,
		PrimaryChoices:   3,
		CandidateWeights: []float64{0.7, 0.2, 0.1},
		EvalNoise:        45,
	},
	"level4": {
		Name:             "level4",
		SkillLevel:       3,
		Elo:              1000,
		Threads:          defaultThreads,
		HashMB:           32,
		MoveTimeMillis:   140,
		NodeCap:          0,
		DepthCap:         10,
		MultiPV:          5,
		PrimaryChoices:   3,
		CandidateWeights: []float64{0.65, 0.25, 0.1},
		EvalNoise:        30,
	},
	"level5": {
		Name:             "level5",
		SkillLevel:       7,
		Elo:              1200,
		Threads:          defaultThreads,
		HashMB:           48,
		MoveTimeMillis:   200,
		NodeCap:          0,
		DepthCap:         12,
		MultiPV:          5,
		PrimaryChoices:   3,
		CandidateWeights: []float64{0.7, 0.2, 0.1},
		EvalNoise:        25,
	},
	"level6": {
		Name:             "level6",
		SkillLevel:       11,
		Elo:              1400,
		Threads:          defaultThreads,
		HashMB:           64,
		MoveTimeMillis:   300,
		NodeCap:          0,
		DepthCap:         16,
		MultiPV:          2,
		PrimaryChoices:   2,
		CandidateWeights: []float64{0.8, 0.2},
		EvalNoise:        10,
	},
	"level7": {
		Name:             "level7",
		SkillLevel:       16,
		Elo:              1650,
		Threads:          defaultThreads,
		HashMB:           96,
		MoveTimeMillis:   500,
		NodeCap:          0,
		DepthCap:         20,
		MultiPV:          2,
		PrimaryChoices:   2,
		CandidateWeights: []float64{0.85, 0.15},
		EvalNoise:        5,
	},
	"level8": {
		Name:             "level8",
		SkillLevel:       20,
		Elo:              1900,
		Threads:          6,
		HashMB:           128,
		MoveTimeMillis:   1000,
		NodeCap:          0,
		DepthCap:         30,
		MultiPV:          1,
		PrimaryChoices:   1,
		CandidateWeights: []float64{1.0},
		EvalNoise:        0,
	},
}

// GetPreset resolves a level name or one of its friendly aliases.
func GetPreset(name string) (DifficultyPreset, error) {
	switch name {
	case "beginner":
		name = "level1"
	case "intermediate":
		name = "level5"
	case "advanced":
		name = "level7"
	case "master":
		name = "level8"
	}
	presetMu.RLock()
	p, ok := DefaultPresets[name]
	presetMu.RUnlock()
	if ok {
		return p, nil
	}
	return DifficultyPreset{}, fmt.Errorf("unknown difficulty preset: %s", name)
}

// KnownLevel reports whether name resolves to a preset.
func KnownLevel(name string) bool {
	_, err := GetPreset(name)
	return err == nil
}

// ParseLevel converts a numeric difficulty (1..8) to its level name.
func ParseLevel(n int) (string, error) {
	name := fmt.Sprintf("level%d", n)
	if _, err := GetPreset(name); err != nil {
		return "", fmt.Errorf("difficulty %d out of range", n)
	}
	return name, nil
}

// LevelOrdinal returns the numeric difficulty for a level name, 0 when
// the name does not follow the levelN pattern.
func LevelOrdinal(name string) int {
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(name), "level%d", &n); err != nil {
		return 0
	}
	return n
}

// Levels lists the preset names in play order.
func Levels() []string {
	presetMu.RLock()
	defer presetMu.RUnlock()
	names := make([]string, 0, len(DefaultPresets))
	for name := range DefaultPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ValidatePreset(p DifficultyPreset) error {
	switch {
	case p.SkillLevel < 0 || p.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", p.SkillLevel)
	case p.Elo < 0:
		return fmt.Errorf("elo must be >= 0: %d", p.Elo)
	case p.Threads <= 0:
		return fmt.Errorf("threads must be > 0: %d", p.Threads)
	case p.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", p.HashMB)
	case p.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", p.MultiPV)
	case p.PrimaryChoices <= 0:
		return fmt.Errorf("primary choices must be > 0: %d", p.PrimaryChoices)
	case p.PrimaryChoices > p.MultiPV:
		return fmt.Errorf("primary choices (%d) must not exceed multipv (%d)", p.PrimaryChoices, p.MultiPV)
	case len(p.CandidateWeights) == 0:
		return fmt.Errorf("candidate weights must not be empty")
	case len(p.CandidateWeights) < p.PrimaryChoices:
		return fmt.Errorf("candidate weights (%d) must cover primary choices (%d)", len(p.CandidateWeights), p.PrimaryChoices)
	}

	sum := 0.0
	for i := 0; i < p.PrimaryChoices; i++ {
		w := p.CandidateWeights[i]
		if w < 0 {
			return fmt.Errorf("candidate weight at index %d is negative: %f", i, w)
		}
		sum += w
	}
	if sum == 0 {
		return fmt.Errorf("candidate weights sum to zero")
	}
	if p.MoveTimeMillis < 0 {
		return fmt.Errorf("move time must be >= 0: %d", p.MoveTimeMillis)
	}
	if p.NodeCap < 0 {
		return fmt.Errorf("node cap must be >= 0: %d", p.NodeCap)
	}
	if p.DepthCap < 0 {
		return fmt.Errorf("depth cap must be >= 0: %d", p.DepthCap)
	}
	if p.EvalNoise < 0 {
		return fmt.Errorf("eval noise must be >= 0: %d", p.EvalNoise)
	}
	return nil
}
