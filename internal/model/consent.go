package model

// ConsentState is the user's tracking consent
type ConsentState string

const (
	ConsentPending    ConsentState = "pending"
	ConsentGranted    ConsentState = "granted"
	ConsentNotGranted ConsentState = "not_granted"
)

// ParseConsent converts a config/env value into a ConsentState.
// Unknown values fall back to pending, which never uploads.
func ParseConsent(value string) ConsentState {
	switch ConsentState(value) {
	case ConsentGranted:
		return ConsentGranted
	case ConsentNotGranted:
		return ConsentNotGranted
	default:
		return ConsentPending
	}
}
