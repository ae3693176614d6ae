package models

import "time"

// License is one slot of an (application, email) pair. An empty HardwareID
// means the slot is free.
type License struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	AppID       int64      `json:"app_id"`
	AppName     string     `json:"app_name"`
	Email       string     `json:"email"`
	HardwareID  string     `json:"hardware_id"`
	LicenseKey  string     `json:"license_key,omitempty"`
	ActivatedAt *time.Time `json:"activated_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (l *License) Free() bool { return l.HardwareID == "" }

func (l *License) Occupied() bool { return !l.Free() }

// ActivationAttempt is an append-only audit row written by the activation
// front-end.
type ActivationAttempt struct {
	AppID      int64     `json:"app_id"`
	Email      string    `json:"email"`
	HardwareID string    `json:"hardware_id"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
