package models

// Application is a sellable app. The engine only reads it.
type Application struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	// Price is kept in minor units; anything above zero means the app is paid.
	Price         int64  `json:"price"`
	ExecutableURL string `json:"executable_url"`
	OwnerID       *int64 `json:"owner_id,omitempty"`
}

// Payment is an external payment fact. Only "approved" matters here.
type Payment struct {
	PaymentID  string `json:"payment_id"`
	AppID      int64  `json:"app_id"`
	UserID     *int64 `json:"user_id,omitempty"`
	PayerEmail string `json:"payer_email"`
	Status     string `json:"status"`
}
