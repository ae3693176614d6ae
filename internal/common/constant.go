// Package common contains shared constants and sentinel errors used across
// slotkeeper components.
package common

// NoBoundLicense is the outcome code reported when Release finds no occupied
// slot for the pair. It is an expected result, not a failure.
const NoBoundLicense = "NO_BOUND_LICENSE"

// Error markers printed in the failure report.
const (
	MarkerValidation    = "VALIDATION_ERROR"
	MarkerQuotaExceeded = "QUOTA_EXCEEDED"
	MarkerStore         = "STORE_ERROR"
)

// Activation attempt statuses as written by the activation front-end.
const (
	ActivationAccepted = "accepted"
	ActivationDenied   = "denied"
)

// PaymentApproved is the only payment status the engine looks at.
const PaymentApproved = "approved"

// Defaults for users created lazily on first bind.
const (
	DefaultUserRole   = "viewer"
	DefaultUserStatus = "active"
)
