package model

import (
	"errors"
)

var (
	ErrInvalidKind     = errors.New("invalid search kind")
	ErrUnsupportedKind = errors.New("search kind not configured")
	ErrUnknownSchedule = errors.New("unknown schedule")
)
