package models

import (
	"time"
)

// ServiceRecord represents a logged maintenance event of a vehicle.
type ServiceRecord struct {
	ID            string    `json:"id"`
	MotorcycleID  string    `json:"motorcycleId"`
	Date          string    `json:"date"`
	Kilometers    float64   `json:"kilometers"`
	WorkDone      string    `json:"workDone"`
	Amount        float64   `json:"amount"`
	Garage        string    `json:"garage,omitempty"`
	Mechanic      string    `json:"mechanic,omitempty"`
	PartsReplaced string    `json:"partsReplaced,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
