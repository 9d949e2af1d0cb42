package utils

import "github.com/google/uuid"

// NewDeviceID returns the identifier this client presents to the hub when
// provisioning a guest session, so the same guest identity survives
// reconnects within one install.
func NewDeviceID() string {
	return uuid.NewString()
}
