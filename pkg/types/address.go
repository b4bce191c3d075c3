package types

import "strings"

// Address is the denormalized shipping snapshot stored on orders and user profiles.
type Address struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// WithDefaults fills every blank field of a from fallback, field by field.
func (a Address) WithDefaults(fallback Address) Address {
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return strings.TrimSpace(v)
	}
	return Address{
		FullName:   pick(a.FullName, fallback.FullName),
		Phone:      pick(a.Phone, fallback.Phone),
		Line1:      pick(a.Line1, fallback.Line1),
		Line2:      pick(a.Line2, fallback.Line2),
		City:       pick(a.City, fallback.City),
		State:      pick(a.State, fallback.State),
		PostalCode: pick(a.PostalCode, fallback.PostalCode),
		Country:    pick(a.Country, fallback.Country),
	}
}

// MissingFields lists the required fields that are still blank.
func (a Address) MissingFields() []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"full_name", a.FullName},
		{"line1", a.Line1},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}
