package service

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrInvalidStatus = errors.New("invalid booking status")
	ErrSlotTaken     = errors.New("time slot already booked")
)
