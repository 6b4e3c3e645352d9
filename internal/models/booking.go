package models

import (
	"strings"
	"time"
)

type Booking struct {
	ID            string    `json:"id" firestore:"-" bson:"-"`
	ServiceID     string    `json:"serviceId" firestore:"serviceId" bson:"serviceId"`
	ServiceName   string    `json:"serviceName" firestore:"serviceName" bson:"serviceName"`
	Date          string    `json:"date" firestore:"date" bson:"date"`
	Time          string    `json:"time" firestore:"time" bson:"time"`
	ClientName    string    `json:"clientName" firestore:"clientName" bson:"clientName"`
	ClientEmail   string    `json:"clientEmail" firestore:"clientEmail" bson:"clientEmail"`
	ClientPhone   string    `json:"clientPhone" firestore:"clientPhone" bson:"clientPhone"`
	ClientMessage string    `json:"clientMessage,omitempty" firestore:"clientMessage,omitempty" bson:"clientMessage,omitempty"`
	Status        string    `json:"status" firestore:"status" bson:"status"` // pending, confirmed, cancelled
	CreatedAt     time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" firestore:"updatedAt" bson:"updatedAt"`
}

// MissingFields lists required fields that are empty after trimming.
func (b *Booking) MissingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("serviceId", b.ServiceID)
	check("serviceName", b.ServiceName)
	check("date", b.Date)
	check("time", b.Time)
	check("clientName", b.ClientName)
	check("clientEmail", b.ClientEmail)
	check("clientPhone", b.ClientPhone)
	return missing
}

// ClientID identifies the booking holder on the calendar slot.
func (b *Booking) ClientID() string {
	return b.ClientEmail
}
