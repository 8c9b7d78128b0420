package models

import "time"

// HealthState is the last reported status of one component.
// Updates are last-writer-wins; there is no history.
type HealthState struct {
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail"`
	UpdatedAt time.Time `json:"updated_at"`
}
