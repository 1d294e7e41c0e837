package common

import (
	"github.com/google/uuid"
)

// NewInstanceID generates a unique server instance ID. Clients use this to
// detect a server restart across websocket reconnects.
func NewInstanceID() string {
	return uuid.New().String()
}
