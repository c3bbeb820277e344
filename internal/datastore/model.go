package datastore

import "time"

// Prediction is one persisted cascade verdict. ID is assigned by the
// caller so the same recording cannot be recorded twice.
type Prediction struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
	Filename   string    `json:"filename"`
	Prediction string    `json:"prediction"`
	Confidence float64   `json:"confidence"`
}
