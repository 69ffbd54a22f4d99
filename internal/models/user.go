package models

// User is the identity of whoever is claiming items on this device.
//
// It is created once by the identity provider and never changes. There is no
// server-side record, uniqueness check, or proof of identity behind it.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id"`

	// Name is the display name shown on claim badges.
	Name string `json:"name"`
}
