package interpreter

import "errors"

var (
	// ErrIncompleteTurn is returned when a response stream ends without a
	// finish marker. Nothing from that turn is added to the history.
	ErrIncompleteTurn = errors.New("response stream ended before the turn finished")

	// ErrNoCredential is returned when no API key could be resolved.
	ErrNoCredential = errors.New("no API key: set OPENAI_API_KEY or provide one interactively")
)
