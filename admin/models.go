package admin

import "errors"

// Platform mirrors the singleton platform row.
type Platform struct {
	Paused          bool
	RegistrationFee int64
	FeesAccrued     int64
}

// ErrPaused is returned by every mutating entry point while the platform
// pause flag is set.
var ErrPaused = errors.New("admin: platform paused")
