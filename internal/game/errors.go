package game

import "errors"

var (
	// ErrNotYourTurn is returned when a seat acts out of turn.
	ErrNotYourTurn = errors.New("game: not your turn")

	// ErrHandNotActive is returned for actions against a hand that is not
	// in a betting state (waiting, showdown resolution or settled).
	ErrHandNotActive = errors.New("game: hand not active")

	// ErrSeatNotActive is returned for actions by a folded or all-in seat.
	ErrSeatNotActive = errors.New("game: seat cannot act")

	// ErrInvalidAction is returned when the action shape is wrong for the
	// current state: checking a live bet, calling nothing, raising below
	// the minimum or above the stack. The hand state is never mutated.
	ErrInvalidAction = errors.New("game: invalid action")
)
