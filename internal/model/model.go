// Package model defines the core domain types for the conference registration system.
package model

import "time"

// EventStatus is the lifecycle stage of an event.
type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// IsValid reports whether s is a known event status.
func (s EventStatus) IsValid() bool {
	switch s {
	case EventUpcoming, EventOngoing, EventCompleted, EventCancelled:
		return true
	}
	return false
}

// Event represents a conference event with a bounded number of seats.
type Event struct {
	ID                  string      `json:"id"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	Location            string      `json:"location"`
	StartDate           time.Time   `json:"startDate"`
	EndDate             time.Time   `json:"endDate"`
	Fee                 int64       `json:"fee"`
	MaxParticipants     int         `json:"maxParticipants"`
	CurrentParticipants int         `json:"currentParticipants"`
	Status              EventStatus `json:"status"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// Remaining returns the number of available seats.
func (e *Event) Remaining() int {
	return e.MaxParticipants - e.CurrentParticipants
}

// IsFull returns true when no seats remain.
func (e *Event) IsFull() bool {
	return e.CurrentParticipants >= e.MaxParticipants
}

// Role is the kind of account acting on the system.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSpeaker    Role = "speaker"
	RoleResearcher Role = "researcher"
	RoleAttendee   Role = "attendee"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleSpeaker, RoleResearcher, RoleAttendee:
		return true
	}
	return false
}

// User is an account known to the identity provider. The registration core
// only references users by ID.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	Organization string `json:"organization"`
	Phone        string `json:"phone"`
}

// Actor is the authenticated caller of an operation. An empty UserID means
// the caller is anonymous.
type Actor struct {
	UserID string
	Role   Role
	Email  string
}

// IsAuthenticated reports whether the actor carries a user identity.
func (a Actor) IsAuthenticated() bool {
	return a.UserID != ""
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Cancellation records that a registration was cancelled and removed.
type Cancellation struct {
	RegistrationID string    `json:"registrationId"`
	EventID        string    `json:"eventId"`
	UserID         string    `json:"userId"`
	CancelledBy    string    `json:"cancelledBy"`
	CancelledAt    time.Time `json:"cancelledAt"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	Fee             int64     `json:"fee"`
	MaxParticipants int       `json:"maxParticipants"`
}

// UpdateEventRequest is the payload for updating an event. Participant
// counts are not part of it.
type UpdateEventRequest struct {
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Location        string      `json:"location"`
	StartDate       time.Time   `json:"startDate"`
	EndDate         time.Time   `json:"endDate"`
	Fee             int64       `json:"fee"`
	MaxParticipants int         `json:"maxParticipants"`
	Status          EventStatus `json:"status"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
