package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Collection names in the document store.
const (
	CollectionCalendar = "calendar"
	CollectionBookings = "bookings"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

const (
	StepSelectService = "select_service"
	StepSelectDate    = "select_date"
	StepSelectTime    = "select_time"
	StepContact       = "contact"
	StepConfirm       = "confirm"
	StepDone          = "done"
	StepFailed        = "failed"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

const (
	// DefaultStateTTL время жизни состояния формы в Redis
	DefaultStateTTL = 24 * 60 * 60 // 24 часа в секундах

	// DefaultBookingsPaginationSize размер страницы списка заявок в боте
	DefaultBookingsPaginationSize = 5
)

// ValidStatus reports whether s is one of the known booking statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}
