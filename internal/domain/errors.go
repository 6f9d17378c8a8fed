package domain

import "errors"

// Domain errors
var (
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrPlayerNotFound       = errors.New("player not found in tournament")
	ErrPlayerOffline        = errors.New("player is invalid or offline")
	ErrInvalidDefinition    = errors.New("invalid tournament definition")
	ErrUnknownObjective     = errors.New("unknown objective")
	ErrAlreadyActive        = errors.New("tournament already started")
	ErrAlreadyEnded         = errors.New("tournament already ended")
	ErrInvalidTransition    = errors.New("invalid tournament status transition")
	ErrNotActive            = errors.New("tournament is not active")
	ErrAlreadyParticipating = errors.New("player already participating")
	ErrNoPermission         = errors.New("player lacks participation permission")
	ErrInsufficientFunds    = errors.New("not enough funds to participate")
	ErrNoRandomTournaments  = errors.New("no random tournaments available")
	ErrManagerStopped       = errors.New("tournament manager stopped")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInternalError        = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTournamentNotFound) ||
		errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrPlayerOffline)
}

// IsConflictError reports errors caused by the tournament's current state.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrAlreadyEnded) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrAlreadyParticipating) ||
		errors.Is(err, ErrNoRandomTournaments)
}
