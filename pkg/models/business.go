package models

// Location is one physical or logical location of a business.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BusinessProfile is the resolved snapshot of the business a conversation
// belongs to.
type BusinessProfile struct {
	ID        string         `json:"id"        validate:"required"`
	Name      string         `json:"name"      validate:"required"`
	Type      string         `json:"type"      validate:"required"`
	Locations []Location     `json:"locations,omitempty"`
	Settings  map[string]any `json:"settings,omitempty"`

	OpenHour  int `json:"open_hour"`
	CloseHour int `json:"close_hour"`
}
