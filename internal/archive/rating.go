package archive

import (
	"math"
	"strings"
	"time"
)

const (
	kFactor             = 24
	defaultPlayerRating = 1200
)

// ApplyResult folds one finished single-player game into the profile and
// returns the updated profile plus the rating delta. A nil profile starts
// a fresh record at the default rating. result is one of the Result
// tokens, playerColor "w" or "b".
func ApplyResult(profile *Profile, level, result, playerColor string, endedAt time.Time) (*Profile, int) {
	if profile == nil {
		profile = &Profile{
			Rating:    defaultPlayerRating,
			CreatedAt: endedAt,
		}
	}

	prevRating := profile.Rating

	profile.GamesPlayed++
	profile.LastLevel = level
	profile.LastPlayedAt = endedAt
	profile.UpdatedAt = endedAt

	resultType := ""
	var score float64
	switch playerOutcome(result, playerColor) {
	case outcomeWin:
		profile.Wins++
		resultType = "win"
		score = 1.0
	case outcomeLoss:
		profile.Losses++
		resultType = "loss"
		score = 0.0
	default:
		profile.Draws++
		resultType = "draw"
		score = 0.5
	}

	if profile.StreakType == resultType {
		profile.Streak++
	} else {
		profile.Streak = 1
		profile.StreakType = resultType
	}

	engineRating := levelApproxRating(level)
	expected := 1 / (1 + math.Pow(10, float64(engineRating-profile.Rating)/400))
	newRating := float64(profile.Rating) + kFactor*(score-expected)
	profile.Rating = int(math.Round(newRating))

	return profile, profile.Rating - prevRating
}

type outcome int

const (
	outcomeDraw outcome = iota
	outcomeWin
	outcomeLoss
)

func playerOutcome(result, playerColor string) outcome {
	winner := ""
	switch strings.ToLower(strings.TrimSpace(result)) {
	case ResultWhite:
		winner = "w"
	case ResultBlack:
		winner = "b"
	default:
		return outcomeDraw
	}
	if winner == strings.ToLower(strings.TrimSpace(playerColor)) {
		return outcomeWin
	}
	return outcomeLoss
}

func levelApproxRating(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "level1":
		return 600
	case "level2":
		return 700
	case "level3":
		return 800
	case "level4":
		return 1000
	case "level5":
		return 1200
	case "level6":
		return 1400
	case "level7":
		return 1650
	case "level8":
		return 1900
	default:
		return 1500
	}
}
