package models

import (
	"fmt"
	"strings"
	"time"
)

// Form field keys kept in FormState.Data.
const (
	FieldServiceID     = "service_id"
	FieldServiceName   = "service_name"
	FieldDate          = "date"
	FieldTime          = "time"
	FieldClientName    = "client_name"
	FieldClientEmail   = "client_email"
	FieldClientPhone   = "client_phone"
	FieldClientMessage = "client_message"
)

// FormState is the persisted progress of one booking form session.
type FormState struct {
	SessionID  string                 `json:"session_id"`
	Step       string                 `json:"step"`
	Data       map[string]interface{} `json:"data"`
	Submitting bool                   `json:"submitting"`
	BookingID  string                 `json:"booking_id,omitempty"`
	Error      string                 `json:"error,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func (s *FormState) Set(key string, value interface{}) {
	if s.Data == nil {
		s.Data = make(map[string]interface{})
	}
	s.Data[key] = value
}

func (s *FormState) GetString(key string) string {
	if s.Data == nil {
		return ""
	}
	val, ok := s.Data[key]
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

// GetText coerces any stored value to trimmed text. Dates are rendered as
// YYYY-MM-DD.
func (s *FormState) GetText(key string) string {
	if s.Data == nil {
		return ""
	}
	val, ok := s.Data[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case time.Time:
		return v.Format(DateLayout)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprint(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (s *FormState) GetTime(key string) time.Time {
	if s.Data == nil {
		return time.Time{}
	}
	val, ok := s.Data[key]
	if !ok {
		return time.Time{}
	}
	switch v := val.(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(DateLayout, v); err == nil {
			return t
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

// Payload assembles a sanitized booking from the collected form data.
func (s *FormState) Payload() Booking {
	date := s.GetText(FieldDate)
	if t := s.GetTime(FieldDate); !t.IsZero() {
		date = t.Format(DateLayout)
	}
	slot := s.GetText(FieldTime)
	if t, err := time.Parse(TimeLayout, slot); err == nil {
		slot = t.Format(TimeLayout)
	}
	return Booking{
		ServiceID:     s.GetText(FieldServiceID),
		ServiceName:   s.GetText(FieldServiceName),
		Date:          date,
		Time:          slot,
		ClientName:    s.GetText(FieldClientName),
		ClientEmail:   s.GetText(FieldClientEmail),
		ClientPhone:   s.GetText(FieldClientPhone),
		ClientMessage: s.GetText(FieldClientMessage),
		Status:        StatusPending,
	}
}
