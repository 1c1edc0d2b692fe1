package policy

import (
	"errors"
	"time"
)

// Mode controls who may operate a device.
type Mode string

const (
	ModeOpen       Mode = "open"
	ModeRestricted Mode = "restricted"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonTypeLocked Reason = "type_locked"
	ReasonNotGranted Reason = "not_granted"
)

var (
	ErrInvalidMode  = errors.New("invalid device mode")
	ErrMissingField = errors.New("device_id/operator_id is required")
	ErrInvalidRange = errors.New("valid_to must be >= valid_from")
)

// Decision is the policy answer for one command.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

// Store holds per-device policy: the device mode, operator grants on
// restricted devices and command types locked on a device.
// Devices without any record are open with nothing locked.
type Store interface {
	SetMode(deviceID string, m Mode) error
	Grant(deviceID, operatorID string, validFrom time.Time, validTo *time.Time) error
	Revoke(deviceID, operatorID string) error

	// SetLockedTypes replaces the locked command types of a device.
	// An empty list unlocks everything.
	SetLockedTypes(deviceID string, types []string) error

	// Decide evaluates a command of typeName sent by operatorID. A locked
	// type is denied before the grant check.
	Decide(deviceID, operatorID, typeName string, now time.Time) (Decision, error)
}

func validateGrantArgs(deviceID, operatorID string, validFrom time.Time, validTo *time.Time) error {
	if deviceID == "" || operatorID == "" {
		return ErrMissingField
	}
	if !validFrom.IsZero() && validTo != nil && !validTo.IsZero() {
		if validTo.Before(validFrom) {
			return ErrInvalidRange
		}
	}
	return nil
}
