package domain

import (
	"strings"
	"time"
)

// User is an account that may belong to an organization.
type User struct {
	ID             string
	OrganizationID *string
}

type Job struct {
	ID             string
	OrganizationID string
	Name           string
	Location       string
	StartsAt       time.Time
	EndsAt         *time.Time
	Notes          string
	Timezone       string
}

// Location resolves the job's timezone, defaulting to UTC.
func (j Job) TimeLocation() *time.Location {
	if j.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(j.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Contact struct {
	ID             string
	OrganizationID string
	FirstName      string
	LastName       string
	CountryCode    string
	PhoneNumber    string
	IsOptedOut     bool
	HasLogin       bool
}

func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type Template struct {
	ID             string
	OrganizationID string
	Name           string
	Body           string
}

// MessageDirection tells outbound sends apart from inbound replies.
type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

type Message struct {
	ID                string
	OrganizationID    string
	ContactID         string
	JobID             string
	Direction         MessageDirection
	Body              string
	ProviderMessageID *string
	CreatedAt         time.Time
}
