package engine

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	chesslib "github.com/corentings/chess/v2"
)

const (
	bookMaxPly    = 12
	bookMinWeight = 1
)

// Book serves opening moves from a polyglot file. A nil Book is valid
// and never offers a move.
type Book struct {
	poly *chesslib.PolyglotBook
}

// LoadBook reads a polyglot book from path. An empty path means no
// book.
func LoadBook(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer file.Close()

	poly, err := chesslib.LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", path, err)
	}
	return &Book{poly: poly}, nil
}

// Probe returns a weighted-random book move for the position, or ""
// when the book has nothing to offer. Moves are verified legal before
// they are handed out.
func (b *Book) Probe(fen string, moves []string, r *rand.Rand) (string, error) {
	if b == nil || b.poly == nil {
		return "", nil
	}
	if len(moves) >= bookMaxPly {
		return "", nil
	}

	game, err := buildGameFromPosition(fen, moves)
	if err != nil {
		return "", err
	}

	hasher := chesslib.NewZobristHasher()
	hashStr, err := hasher.HashPosition(game.FEN())
	if err != nil {
		return "", fmt.Errorf("compute polyglot hash: %w", err)
	}
	entries := b.poly.FindMoves(chesslib.ZobristHashToUint64(hashStr))
	if len(entries) == 0 {
		return "", nil
	}

	entry := pickWeighted(entries, r)
	if entry.Weight < bookMinWeight {
		return "", nil
	}
	bookMove := chesslib.DecodeMove(entry.Move).ToMove()
	uciMove := bookMove.String()

	if err := game.PushNotationMove(uciMove, chesslib.UCINotation{}, nil); err != nil {
		return "", fmt.Errorf("book move %q invalid for position: %w", uciMove, err)
	}
	return uciMove, nil
}

func pickWeighted(entries []chesslib.PolyglotEntry, r *rand.Rand) chesslib.PolyglotEntry {
	if r == nil || len(entries) == 1 {
		return entries[0]
	}
	total := 0
	for _, e := range entries {
		total += int(e.Weight)
	}
	if total <= 0 {
		return entries[0]
	}
	roll := r.Intn(total)
	cumulative := 0
	for _, e := range entries {
		cumulative += int(e.Weight)
		if roll < cumulative {
			return e
		}
	}
	return entries[len(entries)-1]
}

func buildGameFromPosition(fen string, moves []string) (*chesslib.Game, error) {
	var game *chesslib.Game
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		game = chesslib.NewGame()
	} else {
		option, err := chesslib.FEN(fen)
		if err != nil {
			return nil, fmt.Errorf("parse fen %q: %w", fen, err)
		}
		game = chesslib.NewGame(option)
	}
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, chesslib.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("apply move %q: %w", mv, err)
		}
	}
	return game, nil
}
