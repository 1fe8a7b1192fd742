package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrCompetitionClosed   = errors.New("competition is not accepting submissions")
	ErrInvalidGameType     = errors.New("game type not registered for competition")
	ErrWinnerLimitExceeded = errors.New("more winners than the competition allows")
	ErrIdentityNotRanked   = errors.New("identity has no score in competition")
	ErrForbidden           = errors.New("missing capability")

	// ErrImplausibleScore is a validation error: the reported score is higher
	// than any session of the game type can produce.
	ErrImplausibleScore = fmt.Errorf("%w: implausible score", ErrValidation)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
