package notification

import (
	"github.com/rdss/casework/internal/shared/types"
)

// Role of a notification recipient
type Role string

const (
	RoleWorker     Role = "worker"
	RoleSupervisor Role = "supervisor"
)

// Recipient is one target of a notification
type Recipient struct {
	ID   types.ID `json:"id"`
	Role Role     `json:"role"`
}

// Notification is a delivery request handed to the worker pool. Delivery is
// asynchronous and best-effort; no caller ever waits on it.
type Notification struct {
	EventType     string         `json:"event_type"`
	CaseID        types.ID       `json:"case_id"`
	BeneficiaryID types.ID       `json:"beneficiary_id"`
	PriorityCode  string         `json:"priority_code,omitempty"`
	Recipients    []Recipient    `json:"recipients"`
	Subject       string         `json:"subject"`
	Body          string         `json:"body"`
	Payload       map[string]any `json:"payload,omitempty"`
}
