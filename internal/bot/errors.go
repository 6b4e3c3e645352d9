package bot

import (
	"errors"

	"bookingdesk/internal/flow"
	"bookingdesk/internal/service"
	"bookingdesk/internal/store"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, flow.ErrSubmitFailed):
		return "⚠️ " + flow.SubmitFailedMessage
	case errors.Is(err, flow.ErrSessionNotFound):
		return "⚠️ Your booking session has expired. Send /book to start again."
	case errors.Is(err, flow.ErrWrongStep):
		return "⚠️ This action is not available at the current step. Send /book to start again."
	case errors.Is(err, flow.ErrRateLimited):
		return "⚠️ Too many requests. Please wait a moment and try again."
	case errors.Is(err, flow.ErrSubmitInProgress):
		return "⏳ Your booking is already being submitted."
	case errors.Is(err, flow.ErrUnknownService):
		return "⚠️ This service is not available. Please choose another one."
	case errors.Is(err, flow.ErrDateUnavailable):
		return "⚠️ This date cannot be booked. Please choose another date."
	case errors.Is(err, flow.ErrSlotUnavailable):
		return "⚠️ This time is already taken. Please choose another time."
	case errors.Is(err, flow.ErrInvalidInput), errors.Is(err, service.ErrValidation):
		return "⚠️ The value is not valid, please check it and try again."
	case errors.Is(err, service.ErrInvalidStatus):
		return "⚠️ Unknown booking status."
	case errors.Is(err, store.ErrNotFound):
		return "⚠️ Booking not found."
	}

	// Default error message
	return "❌ Something went wrong while processing your request. Please try again later."
}
