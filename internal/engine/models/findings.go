package models

// OrphanedOwner is an application whose owner_id points at no user.
type OrphanedOwner struct {
	AppID   int64  `json:"app_id"`
	AppName string `json:"app_name"`
	OwnerID int64  `json:"owner_id"`
}

// PaymentFinding is an approved payment whose user_id points at no user.
type PaymentFinding struct {
	PaymentID  string `json:"payment_id"`
	AppID      int64  `json:"app_id"`
	UserID     int64  `json:"user_id"`
	PayerEmail string `json:"payer_email"`
}

// DeliverableFinding is a priced application with nothing to deliver.
type DeliverableFinding struct {
	AppID         int64  `json:"app_id"`
	AppName       string `json:"app_name"`
	Price         int64  `json:"price"`
	ExecutableURL string `json:"executable_url"`
}

// LicenseFinding is a license whose user_id points at no user.
type LicenseFinding struct {
	LicenseID int64  `json:"license_id"`
	UserID    int64  `json:"user_id"`
	AppID     int64  `json:"app_id"`
	Email     string `json:"email"`
}

// PaymentsVsLicenses compares paid quota with occupied slots for a pair.
// Mismatch is advisory only.
type PaymentsVsLicenses struct {
	AppID            int64  `json:"app_id"`
	Email            string `json:"email"`
	ApprovedPayments int    `json:"approved_payments"`
	OccupiedSlots    int    `json:"occupied_slots"`
	Mismatch         bool   `json:"mismatch"`
}
