package board

import (
	"sync"

	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// OpeningName labels the game's move sequence with its ECO opening title,
// empty when no moves have been played or nothing matches.
func (p Position) OpeningName() string {
	moves := p.game.Moves()
	if len(moves) == 0 {
		return ""
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	eco := ecoBook.Find(moves)
	if eco == nil {
		return ""
	}
	return eco.Title()
}
