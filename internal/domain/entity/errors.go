package entity

import "errors"

var (
	ErrInvalidGoalID          = errors.New("invalid goal id")
	ErrInvalidGoalDescription = errors.New("invalid goal description")
	ErrEmptyRegistry          = errors.New("no tools available")
)
