package engine

import "errors"

var (
	// ErrStartup means the engine process or endpoint could not be
	// brought up at all.
	ErrStartup = errors.New("engine failed to start")

	// ErrUnavailable marks engine startup or transport failures. Play
	// continues without engine replies.
	ErrUnavailable = errors.New("engine unavailable")

	// ErrSuperseded marks a search whose result arrived after a newer
	// request replaced it. Callers discard the reply.
	ErrSuperseded = errors.New("search superseded")

	// ErrSearchTimeout means a search exceeded its time ceiling.
	ErrSearchTimeout = errors.New("engine search timed out")

	// ErrNoMove means the engine had no legal move to offer.
	ErrNoMove = errors.New("engine returned no move")
)
