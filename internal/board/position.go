// Package board holds the authoritative chess position and delegates every
// rules question to the corentings/chess engine. Positions are immutable: an
// accepted move returns a fresh Position and leaves the receiver untouched,
// which keeps the replay invariant trivially checkable.
package board

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrBadSquare   = errors.New("invalid square")
	ErrBadFEN      = errors.New("invalid fen")
	ErrBadHistory  = errors.New("history does not replay")
)

// Move is a raw move request. It is not inherently legal; Apply decides.
// Promotion may be left as NoPieceType, in which case a promoting move
// defaults to a queen.
type Move struct {
	From      nchess.Square
	To        nchess.Square
	Promotion nchess.PieceType
}

// Resolved is an accepted move: its notations plus the successor position.
type Resolved struct {
	SAN  string
	UCI  string
	Next Position
}

// Position is a full chess state (placement, side to move, castling rights,
// en passant, move counters) plus the move history since its start position.
// The zero value is not usable; construct via Start, FromFEN, or Replay.
type Position struct {
	game     *nchess.Game
	startFEN string
}

// StartingFEN is the canonical record of the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Start returns the standard initial position.
func Start() Position {
	g := nchess.NewGame()
	return Position{game: g, startFEN: g.FEN()}
}

// FromFEN parses a canonical position record. The returned position carries
// no history; text becomes its start position.
func FromFEN(text string) (Position, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Position{}, fmt.Errorf("%w: empty", ErrBadFEN)
	}
	opt, err := nchess.FEN(trimmed)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrBadFEN, err)
	}
	g := nchess.NewGame(opt)
	return Position{game: g, startFEN: g.FEN()}, nil
}

// Replay rebuilds a position by applying algebraic-notation moves to start in
// order. Any unreplayable move fails the whole reconstruction.
func Replay(start Position, sans []string) (Position, error) {
	p := start.clone()
	for i, san := range sans {
		if err := p.game.PushNotationMove(strings.TrimSpace(san), nchess.AlgebraicNotation{}, nil); err != nil {
			return Position{}, fmt.Errorf("%w: move %d (%s): %v", ErrBadHistory, i+1, san, err)
		}
	}
	return p, nil
}

func (p Position) clone() Position {
	return Position{game: p.game.Clone(), startFEN: p.startFEN}
}

// FEN returns the canonical text record of the current position.
func (p Position) FEN() string { return p.game.FEN() }

// StartFEN returns the position History replays from.
func (p Position) StartFEN() string { return p.startFEN }

// Turn returns the side to move.
func (p Position) Turn() nchess.Color { return p.game.Position().Turn() }

// PieceAt returns the piece on sq, NoPiece when empty.
func (p Position) PieceAt(sq nchess.Square) nchess.Piece {
	return p.game.Position().Board().Piece(sq)
}

// History returns the accepted moves since StartFEN in algebraic notation,
// play order.
func (p Position) History() []string {
	moves := p.game.Moves()
	positions := p.game.Positions()
	sans := make([]string, 0, len(moves))
	notation := nchess.AlgebraicNotation{}
	for i := range moves {
		if i >= len(positions) {
			break
		}
		sans = append(sans, notation.Encode(positions[i], moves[i]))
	}
	return sans
}

// MovesUCI returns the same history in compact square-pair notation, the form
// the search wire protocol consumes.
func (p Position) MovesUCI() []string {
	moves := p.game.Moves()
	ucis := make([]string, 0, len(moves))
	for i := range moves {
		ucis = append(ucis, moves[i].String())
	}
	return ucis
}

// MoveCount returns the number of accepted moves since StartFEN.
func (p Position) MoveCount() int { return len(p.game.Moves()) }

// LastMove reports the most recent move's squares for highlighting.
func (p Position) LastMove() (from, to nchess.Square, ok bool) {
	moves := p.game.Moves()
	if len(moves) == 0 {
		return 0, 0, false
	}
	last := moves[len(moves)-1]
	return last.S1(), last.S2(), true
}

// LegalTargets returns the destination squares of every legal move from the
// given square. Promotion variants collapse into one destination.
func (p Position) LegalTargets(from nchess.Square) []nchess.Square {
	seen := make(map[nchess.Square]bool)
	targets := make([]nchess.Square, 0, 8)
	for _, mv := range p.game.ValidMoves() {
		if mv.S1() != from {
			continue
		}
		to := mv.S2()
		if seen[to] {
			continue
		}
		seen[to] = true
		targets = append(targets, to)
	}
	return targets
}

// Apply validates m against the legal move set and returns the resolved move
// with the successor position. A promoting move without an explicit promotion
// piece promotes to a queen.
func (p Position) Apply(m Move) (Resolved, error) {
	chosen := ""
	for _, mv := range p.game.ValidMoves() {
		if mv.S1() != m.From || mv.S2() != m.To {
			continue
		}
		promo := mv.Promo()
		if m.Promotion != nchess.NoPieceType {
			if promo == m.Promotion {
				chosen = mv.String()
				break
			}
			continue
		}
		if promo == nchess.NoPieceType || promo == nchess.Queen {
			chosen = mv.String()
			break
		}
	}
	if chosen == "" {
		return Resolved{}, ErrIllegalMove
	}
	return p.ApplyUCI(chosen)
}

// ApplyUCI applies a move given in compact square-pair notation.
func (p Position) ApplyUCI(uci string) (Resolved, error) {
	return p.applyNotation(strings.ToLower(strings.TrimSpace(uci)), nchess.UCINotation{})
}

// ApplySAN applies a move given in algebraic notation.
func (p Position) ApplySAN(san string) (Resolved, error) {
	return p.applyNotation(strings.TrimSpace(san), nchess.AlgebraicNotation{})
}

func (p Position) applyNotation(text string, notation nchess.Notation) (Resolved, error) {
	if text == "" {
		return Resolved{}, ErrIllegalMove
	}
	next := p.clone()
	if err := next.game.PushNotationMove(text, notation, nil); err != nil {
		return Resolved{}, fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	moves := next.game.Moves()
	positions := next.game.Positions()
	last := len(moves) - 1
	san := nchess.AlgebraicNotation{}.Encode(positions[last], moves[last])
	return Resolved{
		SAN:  san,
		UCI:  moves[last].String(),
		Next: next,
	}, nil
}

// Resign ends the game as a win for the opposite color.
func (p Position) Resign(c nchess.Color) Position {
	next := p.clone()
	next.game.Resign(c)
	return next
}

// Outcome reports the library-tracked game result, NoOutcome while play
// continues.
func (p Position) Outcome() nchess.Outcome { return p.game.Outcome() }

// Method reports how the outcome came about.
func (p Position) Method() nchess.Method { return p.game.Method() }

// PGN renders the game record.
func (p Position) PGN() string { return p.game.String() }

// InCheck reports whether the side to move is in check.
//
// The engine computes this bit for every position it hands out (FEN load,
// move application, game start) but keeps the field unexported and ships no
// accessor in any released v2, so read the engine-maintained value directly
// rather than re-deriving check rules here.
func (p Position) InCheck() bool {
	inCheck := reflect.ValueOf(p.game.Position()).Elem().FieldByName("inCheck")
	return *(*bool)(unsafe.Pointer(inCheck.UnsafeAddr()))
}

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
}

// Material sums the conventional piece values still on the board for
// each side.
func (p Position) Material() (white, black int) {
	brd := p.game.Position().Board()
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			piece := brd.Piece(nchess.NewSquare(file, rank))
			if piece == nchess.NoPiece {
				continue
			}
			value := pieceValues[piece.Type()]
			if value == 0 {
				continue
			}
			if piece.Color() == nchess.White {
				white += value
			} else {
				black += value
			}
		}
	}
	return white, black
}

// IsCheckmate reports whether the side to move is mated.
func (p Position) IsCheckmate() bool {
	return len(p.game.ValidMoves()) == 0 && p.InCheck()
}

// IsStalemate reports whether the side to move has no legal move while not in
// check.
func (p Position) IsStalemate() bool {
	return len(p.game.ValidMoves()) == 0 && !p.InCheck()
}

// IsDraw reports any drawing condition: stalemate, insufficient material,
// threefold repetition, the fifty-move rule, or an explicitly recorded draw.
func (p Position) IsDraw() bool {
	if p.game.Outcome() == nchess.Draw {
		return true
	}
	return p.IsStalemate() || p.IsInsufficientMaterial() || p.IsThreefoldRepetition() || p.fiftyMoveClockExpired()
}

// IsInsufficientMaterial reports whether no mating material remains: bare
// kings, or a lone minor piece beside them.
func (p Position) IsInsufficientMaterial() bool {
	board := p.game.Position().Board()
	minors := 0
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			piece := board.Piece(nchess.NewSquare(file, rank))
			if piece == nchess.NoPiece {
				continue
			}
			switch piece.Type() {
			case nchess.King:
			case nchess.Bishop, nchess.Knight:
				minors++
			default:
				return false
			}
		}
	}
	return minors <= 1
}

// IsThreefoldRepetition reports whether the current position has occurred at
// least three times in this game.
func (p Position) IsThreefoldRepetition() bool {
	positions := p.game.Positions()
	if len(positions) < 5 {
		return false
	}
	current := repetitionKey(positions[len(positions)-1].String())
	count := 0
	for _, pos := range positions {
		if repetitionKey(pos.String()) == current {
			count++
			if count >= 3 {
				return true
			}
		}
	}
	return false
}

func (p Position) fiftyMoveClockExpired() bool {
	fields := strings.Fields(p.game.FEN())
	if len(fields) < 5 {
		return false
	}
	halfmoves, err := strconv.Atoi(fields[4])
	if err != nil {
		return false
	}
	return halfmoves >= 100
}

// repetitionKey drops the move counters from a FEN record; repetition only
// cares about placement, side to move, castling rights and en passant.
func repetitionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return fen
	}
	return strings.Join(fields[:4], " ")
}
