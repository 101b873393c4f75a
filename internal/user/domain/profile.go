package domain

import "strings"

// Profile is a user record owned by the external user service. It is fetched
// on demand and never stored.
type Profile struct {
	UserID     int64  `json:"user_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// AddressLines returns the non-empty postal lines of p.
func (p Profile) AddressLines() []string {
	var lines []string
	if p.Address != "" {
		lines = append(lines, p.Address)
	}
	if l := strings.TrimSpace(p.PostalCode + " " + p.City); l != "" {
		lines = append(lines, l)
	}
	if p.Country != "" {
		lines = append(lines, p.Country)
	}
	return lines
}
