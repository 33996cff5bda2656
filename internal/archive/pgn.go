package archive

import (
	"fmt"
	"strings"
	"time"
)

// BuildPGN renders a finished game as PGN text with headers derived from
// the archive record.
func BuildPGN(g *Game) string {
	if g == nil {
		return ""
	}
	pgnResult := mapResultToPGN(g.Result)

	var b strings.Builder
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"chessdesk\"]\n")
	b.WriteString("[Site \"local\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(sideName(g, "w"))))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(sideName(g, "b"))))
	if strings.TrimSpace(g.Method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(g.Method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(g.MovesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(g.MovesSAN[i])))
		if i+1 < len(g.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(g.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sideName(g *Game, color string) string {
	if g.TwoPlayer {
		if color == "w" {
			return "White"
		}
		return "Black"
	}
	if strings.ToLower(strings.TrimSpace(g.PlayerColor)) == color {
		return "Player"
	}
	if strings.TrimSpace(g.Level) != "" {
		return "Engine (" + g.Level + ")"
	}
	return "Engine"
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case ResultWhite:
		return "1-0"
	case ResultBlack:
		return "0-1"
	case ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
