package events

import "time"

const DepartmentLifecycleTopic = "org.department.lifecycle.v1"

type DepartmentCreatedEvent struct {
	EventType    string    `json:"event_type"`
	RequestID    string    `json:"request_id,omitempty"`
	DepartmentID uint      `json:"department_id"`
	ParentID     *uint     `json:"parent_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// DepartmentDeletedEvent is emitted for both delete modes; Mode records which
// one ran and ReassignedTo is set only for reassign deletes.
type DepartmentDeletedEvent struct {
	EventType    string    `json:"event_type"`
	RequestID    string    `json:"request_id,omitempty"`
	DepartmentID uint      `json:"department_id"`
	Mode         string    `json:"mode"`
	ReassignedTo *uint     `json:"reassigned_to,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
