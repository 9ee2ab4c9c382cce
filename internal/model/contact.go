package model

import "time"

type ContactStatus string

const ContactActive ContactStatus = "active"

// Contact is a counterparty owned by one user. Phone holds digits only with
// the country code; Label is the gateway's opaque identifier when known.
type Contact struct {
	ID        string
	UserID    string
	Phone     string
	Label     string
	Name      string
	Status    ContactStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
