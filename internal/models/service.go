package models

// Service is an entry of the bookable services catalog.
type Service struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	Duration    int    `yaml:"duration_minutes" json:"durationMinutes"`
	Price       string `yaml:"price" json:"price,omitempty"`
	IsActive    bool   `yaml:"is_active" json:"isActive"`
}
